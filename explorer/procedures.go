package explorer

// Stored procedures used when the catalog cannot be queried directly.
const (
	procGetTables    = "get_tables"
	procGetColumns   = "get_columns"
	procGetTableData = "get_table_data"
)

// Instructions installs the stored procedures on a Postgres backend.
const Instructions = `-- Run as a role allowed to read information_schema.
CREATE OR REPLACE FUNCTION get_tables()
RETURNS TABLE (table_name text)
LANGUAGE sql STABLE SECURITY DEFINER AS $$
  SELECT t.table_name::text
  FROM information_schema.tables t
  WHERE t.table_schema = 'public' AND t.table_type = 'BASE TABLE'
  ORDER BY t.table_name;
$$;

CREATE OR REPLACE FUNCTION get_columns(table_name text)
RETURNS TABLE (column_name text, data_type text, is_nullable boolean, column_default text)
LANGUAGE sql STABLE SECURITY DEFINER AS $$
  SELECT c.column_name::text, c.data_type::text, c.is_nullable = 'YES', c.column_default::text
  FROM information_schema.columns c
  WHERE c.table_schema = 'public' AND c.table_name = get_columns.table_name
  ORDER BY c.ordinal_position;
$$;

CREATE OR REPLACE FUNCTION get_table_data(
  table_name text, page_size integer, page_offset integer,
  sort_column text DEFAULT NULL, sort_desc boolean DEFAULT false)
RETURNS TABLE (row_data jsonb, total_count bigint)
LANGUAGE plpgsql STABLE SECURITY DEFINER AS $$
BEGIN
  RETURN QUERY EXECUTE format(
    'SELECT to_jsonb(t), count(*) OVER () FROM %I t %s LIMIT %s OFFSET %s',
    table_name,
    CASE WHEN sort_column IS NULL THEN ''
         ELSE format('ORDER BY %I %s', sort_column, CASE WHEN sort_desc THEN 'DESC' ELSE 'ASC' END)
    END,
    page_size, page_offset);
END;
$$;
`
