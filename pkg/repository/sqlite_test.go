package repository_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/systemshift/graphrepo/internal/config"
	"github.com/systemshift/graphrepo/internal/server/graph"
	"github.com/systemshift/graphrepo/pkg/predicate"
	"github.com/systemshift/graphrepo/pkg/repository"
)

type Member struct {
	Id    string
	Name  string
	Email string `graph:",omitempty"`
	Age   int
}

func (*Member) TypeName() string { return "Member" }
func (m *Member) GetID() string { return m.Id }
func (m *Member) SetID(id string) { m.Id = id }

type Project struct {
	Id    string
	Title string
}

func (*Project) TypeName() string { return "Project" }
func (p *Project) GetID() string { return p.Id }
func (p *Project) SetID(id string) { p.Id = id }

type Badge struct {
	Id    uuid.UUID
	Level int
}

func (*Badge) TypeName() string { return "Badge" }
func (b *Badge) GetID() uuid.UUID { return b.Id }
func (b *Badge) SetID(id uuid.UUID) { b.Id = id }

type Contribution struct {
	Since int
	Role  string
}

func openStore(t *testing.T) *graph.Store {
	t.Helper()
	cfg := config.Default()
	cfg.SQLite.Path = ":memory:"

	ctx := context.Background()
	store, err := graph.Open(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(ctx) })
	return store
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	members := repository.New[*Member](openStore(t))

	added, err := members.Add(ctx, &Member{Name: "Ann", Age: 31})
	require.NoError(t, err)
	require.NotEmpty(t, added.Id)

	got, ok, err := members.GetByID(ctx, added.Id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, &Member{Id: added.Id, Name: "Ann", Age: 31}, got)

	added.Email = "ann@example.com"
	_, err = members.Update(ctx, added)
	require.NoError(t, err)
	got, _, err = members.GetByID(ctx, added.Id)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", got.Email)

	require.NoError(t, members.Delete(ctx, added))
	_, ok, err = members.GetByID(ctx, added.Id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteGetByIDNotFound(t *testing.T) {
	members := repository.New[*Member](openStore(t))

	got, ok, err := members.GetByID(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestSQLitePagination(t *testing.T) {
	ctx := context.Background()
	members := repository.New[*Member](openStore(t))
	for i := 0; i < 15; i++ {
		_, err := members.Add(ctx, &Member{Id: fmt.Sprintf("m%02d", i), Age: i})
		require.NoError(t, err)
	}

	page, err := members.Get(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, page, 10)

	page, err = members.Get(ctx, 10, 10)
	require.NoError(t, err)
	require.Len(t, page, 5)
	assert.Equal(t, "m10", page[0].Id)

	all, err := members.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 15)
}

func TestSQLiteFind(t *testing.T) {
	ctx := context.Background()
	members := repository.New[*Member](openStore(t))
	for _, m := range []*Member{
		{Id: "1", Name: "Ann", Age: 31},
		{Id: "2", Name: "ANNA", Age: 45},
		{Id: "3", Name: "Bob", Age: 52},
	} {
		_, err := members.Add(ctx, m)
		require.NoError(t, err)
	}

	found, err := members.Find(ctx, predicate.Prop("Name").ToLower().StartsWith("ann").And(predicate.Prop("Age").Gt(40)))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "2", found[0].Id)

	found, err = members.Find(ctx, predicate.Prop("Age").Ge(40), repository.Paged(1, 1))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "3", found[0].Id)

	// + concatenates text and adds numbers, as in Cypher
	found, err = members.Find(ctx, predicate.Prop("Name").Plus("x").Eq("Annx"))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "1", found[0].Id)

	found, err = members.Find(ctx, predicate.Prop("Age").Plus(1).Eq(32))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "1", found[0].Id)

	_, err = members.FindRaw(ctx, "x.Age > 1")
	assert.ErrorIs(t, err, graph.ErrNotSupported)

	_, err = members.Find(ctx, predicate.Call(predicate.Prop("Name"), "Trim"))
	assert.True(t, repository.IsUnsupported(err))
}

func TestSQLiteLabels(t *testing.T) {
	ctx := context.Background()
	members := repository.New[*Member](openStore(t))
	_, err := members.Add(ctx, &Member{Id: "1", Name: "Ann"})
	require.NoError(t, err)
	_, err = members.Add(ctx, &Member{Id: "2", Name: "Bob"})
	require.NoError(t, err)

	ok, err := members.AddLabel(ctx, "1", "Admin")
	require.NoError(t, err)
	assert.True(t, ok)

	labels, err := members.GetLabels(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Member", "Admin"}, labels)

	admins, err := members.GetAll(ctx, repository.WithLabel("Admin"))
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "Ann", admins[0].Name)

	_, err = members.DeleteLabel(ctx, "1", "Admin")
	require.NoError(t, err)
	labels, err = members.GetLabels(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Member"}, labels)

	labels, err = members.GetLabels(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, labels)
	assert.Empty(t, labels)
}

func TestSQLiteRelationships(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	members := repository.New[*Member](store)
	projects := repository.New[*Project](store)

	_, err := members.Add(ctx, &Member{Id: "m1", Name: "Ann"})
	require.NoError(t, err)
	for _, p := range []*Project{{Id: "p1", Title: "Core"}, {Id: "p2", Title: "Docs"}} {
		_, err := projects.Add(ctx, p)
		require.NoError(t, err)
	}

	ok, err := repository.AddRelationshipWith[*Project](ctx, members, "m1", "p1", "WORKS_ON", Contribution{Since: 2019, Role: "lead"})
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = repository.AddRelationshipWith[*Project](ctx, members, "m1", "p2", "WORKS_ON", &Contribution{Since: 2023})
	require.NoError(t, err)

	has, err := repository.HasRelationship[*Project](ctx, members, "m1", "p1", "WORKS_ON")
	require.NoError(t, err)
	assert.True(t, has)

	related, err := repository.GetRelated[*Project](ctx, members, "m1", "WORKS_ON")
	require.NoError(t, err)
	require.Len(t, related, 2)
	assert.Equal(t, "Core", related[0].Title)

	recent, err := repository.GetRelated[*Project](ctx, members, "m1", "WORKS_ON", repository.Where(predicate.Prop("Since").Gt(2020)))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "p2", recent[0].Id)

	n, err := repository.GetRelatedCount[*Project](ctx, members, "m1", "WORKS_ON", repository.Where(predicate.Prop("Role").Eq("lead")))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repository.DeleteRelationship[*Project](ctx, members, "m1", "p1", "WORKS_ON")
	require.NoError(t, err)
	has, err = repository.HasRelationship[*Project](ctx, members, "m1", "p1", "WORKS_ON")
	require.NoError(t, err)
	assert.False(t, has)

	// Deleting a project drops its relationships
	require.NoError(t, projects.Delete(ctx, &Project{Id: "p2"}))
	n, err = repository.GetRelatedCount[*Project](ctx, members, "m1", "WORKS_ON")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteConstraintAndIndex(t *testing.T) {
	ctx := context.Background()
	members := repository.New[*Member](openStore(t))

	ok, err := members.CreateConstraint(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = members.CreateIndex(ctx, "Name")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = members.Add(ctx, &Member{Id: "1"})
	require.NoError(t, err)
	_, err = members.Add(ctx, &Member{Id: "1"})
	assert.ErrorIs(t, err, graph.ErrConstraintViolation)

	_, err = members.Query(ctx, "MATCH (n) RETURN n", nil)
	assert.True(t, graph.IsNotSupported(err))
}

func TestSQLiteUUIDKeys(t *testing.T) {
	ctx := context.Background()
	badges := repository.New[*Badge](openStore(t))

	b, err := badges.Add(ctx, &Badge{Level: 3})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, b.Id)

	got, ok, err := badges.GetByID(ctx, b.Id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b, got)
}
