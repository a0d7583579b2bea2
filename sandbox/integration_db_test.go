package sandbox_test

import (
	"context"
	"database/sql"
	"io"
	"os"
	"testing"
	"time"

	"github.com/alovak/cardflow-issuing/internal/expiry"
	"github.com/alovak/cardflow-issuing/internal/security"
	"github.com/alovak/cardflow-issuing/network"
	"github.com/alovak/cardflow-issuing/sandbox"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

// TestPGRepository_IssueAndTransition runs against a real database.
// Skips unless DB_DSN is provided.
func TestPGRepository_IssueAndTransition(t *testing.T) {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		t.Skip("DB_DSN not set; skipping DB integration test")
	}

	ctx := context.Background()
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, sandbox.Migrate(ctx, db))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := sandbox.NewPGRepository(db, []byte("test-pan-hash-key"))
	svc := sandbox.NewService(logger, repo, security.NewHMACProvider([]byte("test-cvk")), sandbox.DefaultConfig())
	owner := "it-" + time.Now().Format("150405.000000")
	svc.AddSession(owner)

	card, err := svc.IssueCard(ctx, owner, "IT HOLDER")
	require.NoError(t, err)

	var expiryYYMM string
	require.NoError(t, db.QueryRowContext(ctx, `select expiry_yymm from sandbox.cards where card_id=$1`, card.ID).Scan(&expiryYYMM))
	require.NoError(t, expiry.ValidateYYMM(expiryYYMM))
	require.Equal(t, card.ExpiryYYMM, expiryYYMM)

	_, err = network.First(ctx, svc.ActivateCard(ctx, owner, card.ID))
	require.NoError(t, err)

	cards, err := network.First(ctx, svc.GetCards(ctx, owner, []network.Status{network.StatusActive}))
	require.NoError(t, err)
	require.Len(t, cards, 1)
	require.Equal(t, card.Last4, cards[0].Last4)
}
