package balance

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Store é o wrapper fino sobre o armazenamento chave-valor de saldos.
// O saldo autoritativo vive na carteira do tenant; isto é apenas o cache
// consultado pelas telas do jogo.
type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func key(userID string) string { return "balance:" + userID }

// Get retorna o saldo em cache; usuário sem chave tem saldo zero
func (s *Store) Get(ctx context.Context, userID string) (int64, error) {
	v, err := s.rdb.Get(ctx, key(userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

func (s *Store) Incr(ctx context.Context, userID string, amount int64) (int64, error) {
	return s.rdb.IncrBy(ctx, key(userID), amount).Result()
}

func (s *Store) Decr(ctx context.Context, userID string, amount int64) (int64, error) {
	return s.rdb.DecrBy(ctx, key(userID), amount).Result()
}
