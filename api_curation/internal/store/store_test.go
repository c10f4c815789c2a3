package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/fortuneofweb3/blabz/api_curation/internal/models"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(mt *mtest.T) *Store {
	s := New(mt.DB)
	s.now = func() time.Time { return fixedNow }
	return s
}

func duplicateKey() bson.D {
	return mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key error"})
}

func TestInsertPost(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	post := &models.Post{PostID: "p1", AccountID: "u1", Projects: []string{"ACME"}, Score: 35}

	mt.Run("created", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		created, err := newTestStore(mt).InsertPost(ctx, post)
		require.NoError(mt, err)
		require.True(mt, created)
	})

	mt.Run("duplicate is swallowed", func(mt *mtest.T) {
		mt.AddMockResponses(duplicateKey())
		created, err := newTestStore(mt).InsertPost(ctx, post)
		require.NoError(mt, err)
		require.False(mt, created)
	})

	mt.Run("other errors surface", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Name: "BadValue", Message: "bad"}))
		_, err := newTestStore(mt).InsertPost(ctx, post)
		require.Error(mt, err)
	})

	mt.Run("posts without projects are refused", func(mt *mtest.T) {
		_, err := newTestStore(mt).InsertPost(ctx, &models.Post{PostID: "p2"})
		require.Error(mt, err)
		require.Empty(mt, mt.GetAllStartedEvents())
	})
}

func TestLedger(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("mark creates once", func(mt *mtest.T) {
		s := newTestStore(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(), duplicateKey())

		created, err := s.MarkIfAbsent(ctx, "p1", "too_short")
		require.NoError(mt, err)
		require.True(mt, created)

		doc := mt.GetStartedEvent().Command.Lookup("documents").Array().Index(0).Value().Document()
		require.Equal(mt, "p1", doc.Lookup("_id").StringValue())
		require.True(mt, doc.Lookup("processedAt").Time().Equal(fixedNow))

		created, err = s.MarkIfAbsent(ctx, "p1", "too_short")
		require.NoError(mt, err)
		require.False(mt, created)
	})

	mt.Run("exists", func(mt *mtest.T) {
		s := newTestStore(mt)
		ns := mt.DB.Name() + "." + CollMarkers
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "_id", Value: "p1"}}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
		)

		ok, err := s.Exists(ctx, "p1")
		require.NoError(mt, err)
		require.True(mt, ok)

		ok, err = s.Exists(ctx, "p2")
		require.NoError(mt, err)
		require.False(mt, ok)
	})

	mt.Run("sweep", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 4}))
		n, err := newTestStore(mt).Sweep(ctx, fixedNow.Add(-time.Hour))
		require.NoError(mt, err)
		require.EqualValues(mt, 4, n)
	})
}

func TestPostQueries(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("by account decodes sorted batch", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + CollPosts
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "p2"}, {Key: "accountId", Value: "u1"}, {Key: "score", Value: 80}, {Key: "projects", Value: bson.A{"ACME"}}, {Key: "createdAt", Value: fixedNow}},
			bson.D{{Key: "_id", Value: "p1"}, {Key: "accountId", Value: "u1"}, {Key: "score", Value: 35}, {Key: "projects", Value: bson.A{"ACME"}}, {Key: "createdAt", Value: fixedNow}},
		))

		posts, err := newTestStore(mt).PostsByAccount(ctx, "u1", fixedNow.Add(-24*time.Hour), 50)
		require.NoError(mt, err)
		require.Len(mt, posts, 2)
		require.Equal(mt, "p2", posts[0].PostID)
		require.Equal(mt, 80, posts[0].Score)

		cmd := mt.GetStartedEvent().Command
		require.EqualValues(mt, 50, cmd.Lookup("limit").AsInt64())
		require.Equal(mt, "u1", cmd.Lookup("filter", "accountId").StringValue())
		require.EqualValues(mt, -1, cmd.Lookup("sort", "score").AsInt64())
	})

	mt.Run("empty result is an empty slice", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mt.DB.Name()+"."+CollPosts, mtest.FirstBatch))
		posts, err := newTestStore(mt).RecentPosts(ctx, fixedNow, 0)
		require.NoError(mt, err)
		require.NotNil(mt, posts)
		require.Empty(mt, posts)
	})

	mt.Run("delete by account", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 3}))
		n, err := newTestStore(mt).DeletePostsByAccount(ctx, "u1")
		require.NoError(mt, err)
		require.EqualValues(mt, 3, n)
	})
}

func TestAccounts(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("upsert without refresh keeps metrics on insert only", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "value", Value: bson.D{{Key: "_id", Value: "alice"}, {Key: "followers", Value: int64(1000)}}},
		})

		acct, err := newTestStore(mt).UpsertAccount(ctx, &models.Account{Handle: "@Alice", DisplayName: "Alice"})
		require.NoError(mt, err)
		require.Equal(mt, "alice", acct.Handle)
		require.EqualValues(mt, 1000, acct.Followers)

		cmd := mt.GetStartedEvent().Command
		require.Equal(mt, "alice", cmd.Lookup("query", "_id").StringValue())
		require.Equal(mt, "Alice", cmd.Lookup("update", "$set", "displayName").StringValue())
		_, err = cmd.LookupErr("update", "$set", "followers")
		require.Error(mt, err)
		_, err = cmd.LookupErr("update", "$setOnInsert", "followers")
		require.NoError(mt, err)
	})

	mt.Run("get missing account", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mt.DB.Name()+"."+CollAccounts, mtest.FirstBatch))
		_, err := newTestStore(mt).GetAccount(ctx, "nobody")
		require.True(mt, errors.Is(err, ErrNotFound))
	})

	mt.Run("delete missing account", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))
		err := newTestStore(mt).DeleteAccount(ctx, "nobody")
		require.True(mt, errors.Is(err, ErrNotFound))
	})
}

func TestProjects(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("list", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mt.DB.Name()+"."+CollProjects, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "ACME"}, {Key: "keywords", Value: bson.A{"anvil"}}},
			bson.D{{Key: "_id", Value: "ZETA"}, {Key: "keywords", Value: bson.A{}}},
		))
		projects, err := newTestStore(mt).ListProjects(ctx)
		require.NoError(mt, err)
		require.Len(mt, projects, 2)
		require.Equal(mt, []string{"anvil"}, projects[0].Keywords)
	})

	mt.Run("upsert always writes keywords", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "value", Value: bson.D{{Key: "_id", Value: "ACME"}, {Key: "keywords", Value: bson.A{}}}},
		})
		p, err := newTestStore(mt).UpsertProject(ctx, &models.Project{Name: "ACME"})
		require.NoError(mt, err)
		require.Equal(mt, "ACME", p.Name)

		cmd := mt.GetStartedEvent().Command
		require.Equal(mt, bson.TypeArray, cmd.Lookup("update", "$set", "keywords").Type)
		require.True(mt, cmd.Lookup("update", "$set", "updatedAt").Time().Equal(fixedNow))
	})
}

func TestNormalizeHandle(t *testing.T) {
	require.Equal(t, "alice", NormalizeHandle("  @Alice "))
}

func TestUpsertAccountConflict(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("upstream id owned by another handle", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 11000, Name: "DuplicateKey", Message: "E11000 duplicate key error collection: accounts index: upstream_id_unique",
		}))
		_, err := newTestStore(mt).UpsertAccount(context.Background(), &models.Account{Handle: "alice2", UpstreamID: "42"})
		require.True(mt, errors.Is(err, ErrConflict))
	})
}
