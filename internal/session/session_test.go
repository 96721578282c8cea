package session

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/qiaoborui/telegram-search-bot/internal/format"
	"github.com/qiaoborui/telegram-search-bot/internal/nlquery"
	"github.com/qiaoborui/telegram-search-bot/internal/search"
	"github.com/qiaoborui/telegram-search-bot/internal/store"
	"github.com/qiaoborui/telegram-search-bot/internal/token"
)

type fakeNorm struct {
	q   search.Query
	err error
}

func (f *fakeNorm) Normalize(context.Context, string, time.Time, int64, int64) (search.Query, error) {
	return f.q, f.err
}

func testSession(t *testing.T, norm Normalizer) (*Session, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	exec := search.NewExecutor(db, zap.NewNop())
	codec := token.NewCodec(token.NewMemoryCache())
	s := New(exec, codec, format.New(time.UTC), norm, 25, zap.NewNop())
	return s, db
}

func seedMany(t *testing.T, db *store.DB, chatID int64, n int) {
	t.Helper()
	if err := db.UpsertUser(&store.User{ID: 1, Fullname: "Alice"}); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= n; i++ {
		err := db.UpsertMessage(&store.Message{
			MsgID: int64(i), ChatID: chatID, SenderID: 1,
			Kind: "text", Text: "hello world", SentAt: int64(i),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

var scope = search.Scope{{ID: 100, Title: "Go Nuts"}}

func TestFreshSearchAndTurnPage(t *testing.T) {
	s, db := testSession(t, nil)
	seedMany(t, db, 100, 30)
	ctx := context.Background()

	page, err := s.FreshSearch(ctx, "hello", 7, scope)
	if err != nil {
		t.Fatal(err)
	}
	if page.Kind != KindResults {
		t.Fatalf("Kind = %v, want results", page.Kind)
	}
	if page.Total != 30 || page.TotalPages != 2 || page.Page != 1 {
		t.Errorf("page = %d/%d total %d, want 1/2 total 30", page.Page, page.TotalPages, page.Total)
	}
	if page.Controls == nil || page.Controls.Label != "1/2" {
		t.Fatalf("Controls = %+v", page.Controls)
	}
	if page.Controls.PrevData != "" {
		t.Error("page 1 must not have a prev control")
	}
	if page.Controls.NextData == "" {
		t.Fatal("page 1 must have a next control")
	}
	if len(page.Controls.NextData) > token.MaxCallbackBytes {
		t.Errorf("callback data %d bytes, budget %d", len(page.Controls.NextData), token.MaxCallbackBytes)
	}

	page2, err := s.TurnPage(ctx, page.Controls.NextData, 7, scope)
	if err != nil {
		t.Fatal(err)
	}
	if page2.Page != 2 || page2.Total != 30 {
		t.Errorf("page = %d total %d, want 2 total 30", page2.Page, page2.Total)
	}
	if page2.Controls.NextData != "" {
		t.Error("last page must not have a next control")
	}
	if page2.Controls.PrevData == "" {
		t.Error("page 2 must have a prev control")
	}
	// 25 rows rendered on page 1, 5 on page 2: spot-check via the header.
	if !strings.Contains(page2.Text, "(Total: 30)") {
		t.Errorf("page text missing total:\n%s", page2.Text)
	}
}

func TestPageJumpSyntax(t *testing.T) {
	s, db := testSession(t, nil)
	seedMany(t, db, 100, 30)

	page, err := s.FreshSearch(context.Background(), "* 2", 7, scope)
	if err != nil {
		t.Fatal(err)
	}
	if page.Kind != KindResults || page.Page != 2 {
		t.Errorf("got kind %v page %d, want results page 2", page.Kind, page.Page)
	}
}

func TestExhausted(t *testing.T) {
	s, db := testSession(t, nil)
	seedMany(t, db, 100, 30)

	// A page-3 token against 30 matches and page size 25.
	page, err := s.TurnPage(context.Background(), token.Frame("0|3|hello|||"), 7, scope)
	if err != nil {
		t.Fatal(err)
	}
	if page.Kind != KindExhausted {
		t.Fatalf("Kind = %v, want exhausted", page.Kind)
	}
	if page.Controls != nil {
		t.Error("exhausted page must not issue new tokens")
	}
}

func TestEmptyScopeVersusEmptyResult(t *testing.T) {
	s, db := testSession(t, nil)
	seedMany(t, db, 100, 1)
	ctx := context.Background()

	page, err := s.FreshSearch(ctx, "hello", 7, nil)
	if err != nil {
		t.Fatal(err)
	}
	if page.Kind != KindEmptyScope {
		t.Errorf("Kind = %v, want empty scope", page.Kind)
	}

	page, err = s.FreshSearch(ctx, "nomatch", 7, scope)
	if err != nil {
		t.Fatal(err)
	}
	if page.Kind != KindEmptyResult {
		t.Errorf("Kind = %v, want empty result", page.Kind)
	}
}

func TestTurnPageScopeRevalidation(t *testing.T) {
	s, db := testSession(t, nil)
	wide := search.Scope{{ID: 100, Title: "Go Nuts"}, {ID: 200, Title: "Random"}}
	seedMany(t, db, 100, 30)
	seedMany(t, db, 200, 30)
	ctx := context.Background()

	page, err := s.FreshSearch(ctx, "hello", 7, wide)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 60 {
		t.Fatalf("Total = %d, want 60", page.Total)
	}

	// The caller lost access to chat 200 between clicks; the resumed
	// search must not see it even though the token predates the change.
	narrowed := search.Scope{{ID: 100, Title: "Go Nuts"}}
	page2, err := s.TurnPage(ctx, page.Controls.NextData, 7, narrowed)
	if err != nil {
		t.Fatal(err)
	}
	if page2.Total != 30 {
		t.Errorf("Total = %d, want 30 (chat 200 excluded)", page2.Total)
	}
	if strings.Contains(page2.Text, "Random") {
		t.Error("resumed page leaks messages from a revoked chat")
	}
}

func TestTurnPageInvalidToken(t *testing.T) {
	s, _ := testSession(t, nil)
	ctx := context.Background()

	if _, err := s.TurnPage(ctx, "not even framed", 7, scope); !errors.Is(err, token.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
	if _, err := s.TurnPage(ctx, token.Frame("9|zzz"), 7, scope); !errors.Is(err, token.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestFreshNLSearch(t *testing.T) {
	norm := &fakeNorm{q: search.Query{Keywords: []string{"hello"}, Page: 1}}
	s, db := testSession(t, norm)
	seedMany(t, db, 100, 3)

	page, err := s.FreshNLSearch(context.Background(), "what was said", time.Now(), 7, 0, scope)
	if err != nil {
		t.Fatal(err)
	}
	if page.Kind != KindResults || page.Total != 3 {
		t.Fatalf("kind %v total %d, want results total 3", page.Kind, page.Total)
	}
	if !strings.Contains(page.Text, "Parsed query") {
		t.Error("NL result missing parsed-query echo")
	}
}

func TestFreshNLSearchUpstreamFailure(t *testing.T) {
	norm := &fakeNorm{err: nlquery.ErrUpstream}
	s, db := testSession(t, norm)
	seedMany(t, db, 100, 3)

	_, err := s.FreshNLSearch(context.Background(), "anything", time.Now(), 7, 0, scope)
	if !errors.Is(err, nlquery.ErrUpstream) {
		t.Errorf("err = %v, want ErrUpstream", err)
	}
}

func TestFreshNLSearchUnconfigured(t *testing.T) {
	s, _ := testSession(t, nil)
	_, err := s.FreshNLSearch(context.Background(), "anything", time.Now(), 7, 0, scope)
	if !errors.Is(err, nlquery.ErrUpstream) {
		t.Errorf("err = %v, want ErrUpstream", err)
	}
}

func TestCallerMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{token.ErrStaleQuery, "expired"},
		{token.ErrInvalidToken, "Invalid page control"},
		{nlquery.ErrUpstream, "couldn't understand"},
		{errors.New("db on fire"), "try again"},
	}
	for _, tt := range tests {
		if got := CallerMessage(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("CallerMessage(%v) = %q, want substring %q", tt.err, got, tt.want)
		}
	}
}
