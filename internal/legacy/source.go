package legacy

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSource reads the legacy schema from its own database.
type PGSource struct {
	pool *pgxpool.Pool
}

// NewSource constructs a PGSource over the legacy pool.
func NewSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

// Models lists tax_models.
func (s *PGSource) Models(ctx context.Context) ([]Model, error) {
	rows, err := s.pool.Query(ctx, `SELECT id::text, nombre, COALESCE(descripcion, '') FROM tax_models ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Model
	for rows.Next() {
		var m Model
		if err := rows.Scan(&m.ID, &m.Name, &m.Description); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Periods lists tax_periods.
func (s *PGSource) Periods(ctx context.Context) ([]Period, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, modelo_id::text, anio, trimestre, mes, inicio_presentacion, fin_presentacion
		FROM tax_periods
		ORDER BY anio, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		var (
			p              Period
			quarter, month *int32
		)
		if err := rows.Scan(&p.ID, &p.ModelID, &p.Year, &quarter, &month, &p.SubmissionStart, &p.SubmissionEnd); err != nil {
			return nil, err
		}
		p.Quarter = intPtr(quarter)
		p.Month = intPtr(month)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ClientTaxes lists client_tax rows with the paths of their files in upload order.
func (s *PGSource) ClientTaxes(ctx context.Context) ([]ClientTax, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ct.id::text, ct.client_id::text, ct.tax_period_id::text, ct.estado, COALESCE(ct.notas, ''),
			ct.fecha_actualizacion,
			COALESCE(array_agg(tf.ruta ORDER BY tf.fecha_subida) FILTER (WHERE tf.ruta IS NOT NULL), '{}')
		FROM client_tax ct
		LEFT JOIN tax_files tf ON tf.client_tax_id = ct.id
		GROUP BY ct.id
		ORDER BY ct.fecha_creacion, ct.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ClientTax
	for rows.Next() {
		var c ClientTax
		if err := rows.Scan(&c.ID, &c.ClientID, &c.PeriodID, &c.State, &c.Notes, &c.UpdatedAt, &c.Files); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}
