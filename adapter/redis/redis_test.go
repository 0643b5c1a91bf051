package redis_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xport"
	"github.com/trickstertwo/xport/adapter/memory"
	"github.com/trickstertwo/xport/adapter/redis"
	"github.com/trickstertwo/xport/library"
	"github.com/trickstertwo/xport/library/librarytest"
)

func testConfig(t *testing.T) (redis.Config, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := redis.Defaults()
	cfg.Addr = mr.Addr()
	cfg.Block = 50 * time.Millisecond
	cfg.StartID = "0"
	return cfg, mr
}

func client(t *testing.T, mr *miniredis.Miniredis) *goredis.Client {
	t.Helper()
	c := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDatabaseContract(t *testing.T) {
	librarytest.RunDatabase(t, func(t *testing.T) library.Database {
		cfg, _ := testConfig(t)
		db, err := redis.NewDatabase(cfg)
		require.NoError(t, err)
		require.NoError(t, db.SetUp(context.Background()))
		t.Cleanup(func() { _ = db.Close(context.Background()) })
		return db
	}, librarytest.Reject)
}

func TestDatabase_StoresHashesUnderPrefix(t *testing.T) {
	cfg, mr := testConfig(t)
	cfg.KeyPrefix = "shelf"
	db, err := redis.NewDatabase(cfg)
	require.NoError(t, err)
	defer db.Close(context.Background())

	librarytest.SaveAll(t, db, librarytest.Dune)

	assert.Equal(t, "Dune", mr.HGet("shelf:book:"+librarytest.Dune.ISBN, "name"))
	members, err := mr.Members("shelf:books")
	require.NoError(t, err)
	assert.Equal(t, []string{librarytest.Dune.ISBN}, members)
}

func TestDatabase_RejectsDuplicateWithinOneUnit(t *testing.T) {
	ctx := context.Background()
	cfg, _ := testConfig(t)
	db, err := redis.NewDatabase(cfg)
	require.NoError(t, err)
	defer db.Close(ctx)

	err = xport.Run(ctx, db.UnitOfWorkManager(), func(ctx context.Context, repo library.BookRepository) error {
		require.NoError(t, repo.Save(ctx, librarytest.Dune))
		return repo.Save(ctx, librarytest.Dune)
	})
	assert.ErrorIs(t, err, library.ErrBookAlreadyExists)
}

func TestSetUp_FailsWhenServerIsDown(t *testing.T) {
	cfg := redis.Defaults()
	cfg.Addr = "127.0.0.1:1"
	db, err := redis.NewDatabase(cfg)
	require.NoError(t, err)
	defer db.Close(context.Background())
	assert.Error(t, db.SetUp(context.Background()))
}

func TestSender_AppendsToNotifyStream(t *testing.T) {
	ctx := context.Background()
	cfg, mr := testConfig(t)
	s, err := redis.NewSender(cfg)
	require.NoError(t, err)
	defer s.Close(ctx)

	require.NoError(t, s.Send(ctx, "hello"))

	entries, err := client(t, mr).XRange(ctx, cfg.NotifyStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0].Values["payload"])
	assert.NotEmpty(t, entries[0].Values["id"])
}

func newLibraryBus(t *testing.T) (*xport.Bus, *memory.Database) {
	t.Helper()
	db := memory.NewDatabase(memory.Config{})
	bus, err := xport.NewBusBuilder().Build()
	require.NoError(t, err)
	require.NoError(t, library.Wire(bus, db, nil))
	bus.Seal()
	t.Cleanup(func() { _ = bus.Close(context.Background()) })
	return bus, db
}

func TestInterface_DispatchesCommandsAndReplies(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cfg, mr := testConfig(t)
	cfg.Concurrency = 1
	bus, db := newLibraryBus(t)

	in, err := redis.NewInterface(cfg)
	require.NoError(t, err)
	in.SetMessageBus(bus)
	in.SetView(db.View())
	require.NoError(t, in.Start(ctx))
	defer in.Stop(context.Background())

	payload, err := json.Marshal(librarytest.Dune)
	require.NoError(t, err)
	c := client(t, mr)
	require.NoError(t, c.XAdd(ctx, &goredis.XAddArgs{
		Stream: cfg.Stream,
		Values: map[string]any{"name": "register", "payload": payload, "reply_to": "replies"},
	}).Err())

	require.Eventually(t, func() bool {
		_, err := db.View().ByISBN(ctx, librarytest.Dune.ISBN)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		n, err := c.XLen(ctx, "replies").Result()
		return err == nil && n == 1
	}, 5*time.Second, 20*time.Millisecond)

	replies, err := c.XRange(ctx, "replies", "-", "+").Result()
	require.NoError(t, err)
	assert.Equal(t, "1", replies[0].Values["ok"])

	var got library.Book
	require.NoError(t, json.Unmarshal([]byte(replies[0].Values["result"].(string)), &got))
	assert.Equal(t, librarytest.Dune, got)
}

func TestInterface_DeadLettersUnknownCommands(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cfg, mr := testConfig(t)
	cfg.DeadLetter = "library:dead"
	bus, db := newLibraryBus(t)

	in, err := redis.NewInterface(cfg)
	require.NoError(t, err)
	in.SetMessageBus(bus)
	in.SetView(db.View())
	require.NoError(t, in.Start(ctx))
	defer in.Stop(context.Background())

	c := client(t, mr)
	require.NoError(t, c.XAdd(ctx, &goredis.XAddArgs{
		Stream: cfg.Stream,
		Values: map[string]any{"name": "borrow", "payload": "{}"},
	}).Err())

	require.Eventually(t, func() bool {
		n, err := c.XLen(ctx, cfg.DeadLetter).Result()
		return err == nil && n == 1
	}, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return in.Stats().Acked == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, uint64(1), in.Stats().Failed)
}

func TestInterface_StartNeedsBus(t *testing.T) {
	cfg, _ := testConfig(t)
	in, err := redis.NewInterface(cfg)
	require.NoError(t, err)
	assert.Error(t, in.Start(context.Background()))
	require.NoError(t, in.Stop(context.Background()))
}

func TestConfigFromMap_KeepsDefaults(t *testing.T) {
	cfg := redis.ConfigFromMap(xport.Config{"addr": "cache:6379", "block": "250ms", "concurrency": 2.0})
	assert.Equal(t, "cache:6379", cfg.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Block)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, "library:commands", cfg.Stream)
	assert.NoError(t, cfg.Validate())
}

func TestRegister_AllContexts(t *testing.T) {
	reg := xport.NewRegistry()
	require.NoError(t, redis.Register(reg))
	assert.Equal(t, []string{"redis"}, reg.Technologies(xport.ContextDatabase))
	assert.Equal(t, []string{"redis"}, reg.Technologies(xport.ContextInterface))
	assert.Equal(t, []string{"redis"}, reg.Technologies(xport.ContextSender))
}
