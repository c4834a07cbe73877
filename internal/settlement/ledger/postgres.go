package ledger

import (
	"context"
	"database/sql"
)

// Row é o registro de auditoria da contribuição de pote de uma aposta
// liquidada (apenas para o game que exige ledger).
type Row struct {
	PotIndex int
	UserID   string
	Amount   int64
	Type     int
	PotName  string
	AppKey   string
}

// Appender é o recorte consumido pelo worker pool
type Appender interface {
	AppendPotContribution(ctx context.Context, r Row) error
}

// Postgres implementa o append de ledger em banco
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) AppendPotContribution(ctx context.Context, r Row) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO pot_contributions (pot_index, user_id, amount, type, pot_name, app_key, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW())`,
		r.PotIndex, r.UserID, r.Amount, r.Type, r.PotName, r.AppKey)
	return err
}
