package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petlink/backend/internal/auth"
	"github.com/petlink/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(runWithCockroach(m))
}

// runWithCockroach boots a throwaway cockroach node, applies the migrations
// and runs the package tests against it.
func runWithCockroach(m *testing.M) int {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		return 1
	}
	defer server.Stop()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		return 1
	}
	defer pool.Close()

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		return 1
	}

	testPool = pool
	return m.Run()
}

func TestPostgresUserRepository(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	user := models.User{
		ID:          uuid.NewString(),
		Email:       "alice@example.com",
		Password:    "secret-hash",
		FirstName:   "Alice",
		LastName:    "Liddell",
		PhoneNumber: "+15550100",
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	dup := user
	dup.ID = uuid.NewString()
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for a taken email, got %v", err)
	}

	lookups := map[string]func() (models.User, error){
		"byEmail": func() (models.User, error) { return repo.FindByEmail(ctx, user.Email) },
		"byID":    func() (models.User, error) { return repo.FindByID(ctx, user.ID) },
	}
	for name, lookup := range lookups {
		t.Run(name, func(t *testing.T) {
			got, err := lookup()
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			if got.ID != user.ID || got.FirstName != "Alice" || got.PhoneNumber != "+15550100" || got.Password != user.Password {
				t.Fatalf("unexpected user %+v", got)
			}
		})
	}

	if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresSessionStore(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	user := createTestUser(t, "owner@example.com")
	store := NewPostgresSessionStore(testPool)

	expires := time.Now().UTC().Add(24 * time.Hour)
	session := auth.Session{
		AccessToken:     uuid.NewString(),
		AccessExpiresAt: time.Now().UTC().Add(15 * time.Minute),
		RefreshToken:    uuid.NewString(),
		UserID:          user.ID,
		ExpiresAt:       expires,
	}
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	loaded, err := store.Find(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if loaded.UserID != user.ID || loaded.ExpiresAt.Sub(expires).Abs() > time.Millisecond {
		t.Fatalf("unexpected session %+v", loaded)
	}

	rotated := session
	rotated.AccessToken = uuid.NewString()
	if err := store.Save(ctx, rotated); err != nil {
		t.Fatalf("resave session: %v", err)
	}
	if _, err := store.FindByAccessToken(ctx, session.AccessToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected the replaced access token to be gone, got %v", err)
	}
	if got, err := store.FindByAccessToken(ctx, rotated.AccessToken); err != nil || got.RefreshToken != session.RefreshToken {
		t.Fatalf("find by access token: %+v (%v)", got, err)
	}

	for i := 0; i < 2; i++ {
		if err := store.Delete(ctx, session.RefreshToken); err != nil {
			t.Fatalf("delete session (attempt %d): %v", i+1, err)
		}
	}
	if _, err := store.Find(ctx, session.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestPostgresLinkRepository_ListUpdatePromoteDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	primary := createTestUser(t, "primary@example.com")
	coParent := createTestUser(t, "coparent@example.com")
	companion := createTestCompanion(t, primary.ID, "Rex")

	links := NewPostgresLinkRepository(testPool)
	if err := links.Create(ctx, testLink(coParent.ID, companion.ID, models.RoleCoParent, models.StatusAccepted)); err != nil {
		t.Fatalf("create link: %v", err)
	}
	if err := links.Create(ctx, testLink(coParent.ID, companion.ID, models.RoleCoParent, models.StatusAccepted)); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate link, got %v", err)
	}

	details, err := links.ListByCompanion(ctx, companion.ID)
	if err != nil {
		t.Fatalf("list by companion: %v", err)
	}
	if len(details) != 2 || details[0].Link.ParentID != primary.ID || details[1].Parent.Email != coParent.Email {
		t.Fatalf("unexpected details %+v", details)
	}
	if details[1].Companion.Name != "Rex" {
		t.Fatalf("expected companion joined, got %+v", details[1].Companion)
	}

	perms := models.CoParentPermissions{Tasks: true, Documents: true}
	updated, err := links.UpdatePermissions(ctx, companion.ID, coParent.ID, perms, time.Now().UTC())
	if err != nil {
		t.Fatalf("update permissions: %v", err)
	}
	if updated.Permissions != perms {
		t.Fatalf("expected %+v got %+v", perms, updated.Permissions)
	}

	if err := links.PromoteToPrimary(ctx, companion.ID, coParent.ID, time.Now().UTC()); err != nil {
		t.Fatalf("promote: %v", err)
	}

	demoted, err := links.Find(ctx, companion.ID, primary.ID)
	if err != nil || demoted.Role != models.RoleCoParent {
		t.Fatalf("expected previous primary demoted, got %+v (%v)", demoted, err)
	}
	promoted, err := links.Find(ctx, companion.ID, coParent.ID)
	if err != nil || promoted.Role != models.RolePrimary || promoted.Permissions != models.FullPermissions() {
		t.Fatalf("expected promoted link with full permissions, got %+v (%v)", promoted, err)
	}

	if err := links.PromoteToPrimary(ctx, companion.ID, uuid.NewString(), time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound promoting unknown parent, got %v", err)
	}

	byParent, err := links.ListByParent(ctx, coParent.ID)
	if err != nil || len(byParent) != 1 {
		t.Fatalf("list by parent: %+v (%v)", byParent, err)
	}

	if err := links.Delete(ctx, companion.ID, primary.ID); err != nil {
		t.Fatalf("delete link: %v", err)
	}
	if err := links.Delete(ctx, companion.ID, primary.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestPostgresInviteRepository_AcceptDeclineExpire(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	primary := createTestUser(t, "primary@example.com")
	invitee := createTestUser(t, "invitee@example.com")
	companion := createTestCompanion(t, primary.ID, "Rex")

	invites := NewPostgresInviteRepository(testPool)
	links := NewPostgresLinkRepository(testPool)
	now := time.Now().UTC()

	accepted := testInvite(companion.ID, primary.ID, "Invitee@Example.com", now.Add(time.Hour))
	declined := testInvite(companion.ID, primary.ID, "invitee@example.com", now.Add(time.Hour))
	expired := testInvite(companion.ID, primary.ID, "invitee@example.com", now.Add(-time.Minute))
	for _, invite := range []models.CoParentInvite{accepted, declined, expired} {
		if err := invites.Create(ctx, invite); err != nil {
			t.Fatalf("create invite: %v", err)
		}
	}

	pending, err := invites.ListPendingForEmail(ctx, invitee.Email, now)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected two unexpired invites, got %d", len(pending))
	}
	if pending[0].Inviter.Email != primary.Email || pending[0].Companion.Name != "Rex" {
		t.Fatalf("expected inviter and companion joined, got %+v", pending[0])
	}

	forCompanion, err := invites.ListPendingForCompanion(ctx, companion.ID, now)
	if err != nil || len(forCompanion) != 2 {
		t.Fatalf("list for companion: %+v (%v)", forCompanion, err)
	}

	link := testLink(invitee.ID, "", models.RoleCoParent, models.StatusAccepted)
	if err := invites.Accept(ctx, accepted.Token, link, now); err != nil {
		t.Fatalf("accept: %v", err)
	}
	stored, err := links.Find(ctx, companion.ID, invitee.ID)
	if err != nil || stored.Status != models.StatusAccepted {
		t.Fatalf("expected accepted link, got %+v (%v)", stored, err)
	}
	if err := invites.Accept(ctx, accepted.Token, link, now); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict accepting twice, got %v", err)
	}

	if err := invites.Decline(ctx, declined.Token, now); err != nil {
		t.Fatalf("decline: %v", err)
	}
	resolved, err := invites.FindByToken(ctx, declined.Token)
	if err != nil || resolved.Status != models.StatusDeclined || resolved.RespondedAt == nil {
		t.Fatalf("expected declined invite, got %+v (%v)", resolved, err)
	}

	if err := invites.Decline(ctx, expired.Token, now); !errors.Is(err, ErrInviteExpired) {
		t.Fatalf("expected ErrInviteExpired, got %v", err)
	}
	if err := invites.Decline(ctx, uuid.NewString(), now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	files, err := filepath.Glob(filepath.Join("..", "..", "migrations", "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, file := range files {
		contents, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", filepath.Base(file), err)
		}
		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply %s: %w", filepath.Base(file), err)
		}
	}
	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE coparent_invites, companion_links, companions, sessions, users CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestUser(t *testing.T, email string) models.User {
	t.Helper()
	user := models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Password:  "password-hash",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := NewPostgresUserRepository(testPool).Create(context.Background(), user); err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}

func createTestCompanion(t *testing.T, ownerID, name string) models.Companion {
	t.Helper()
	companion := models.Companion{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	owner := testLink(ownerID, companion.ID, models.RolePrimary, models.StatusAccepted)
	owner.Permissions = models.FullPermissions()
	owner.CreatedAt = time.Now().UTC().Add(-time.Hour)
	if err := NewPostgresCompanionRepository(testPool).Create(context.Background(), companion, owner); err != nil {
		t.Fatalf("create test companion: %v", err)
	}
	return companion
}

func testLink(parentID, companionID, role, status string) models.CompanionLink {
	now := time.Now().UTC()
	return models.CompanionLink{
		ID:          uuid.NewString(),
		ParentID:    parentID,
		CompanionID: companionID,
		Role:        role,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func testInvite(companionID, invitedBy, email string, expiresAt time.Time) models.CoParentInvite {
	return models.CoParentInvite{
		Token:       uuid.NewString(),
		Email:       email,
		InviteeName: "Invitee",
		CompanionID: companionID,
		InvitedBy:   invitedBy,
		Status:      models.StatusPending,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now().UTC(),
	}
}
