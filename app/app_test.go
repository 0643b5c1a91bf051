package app_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xport"
	"github.com/trickstertwo/xport/adapter/memory"
	xhttp "github.com/trickstertwo/xport/adapter/http"
	"github.com/trickstertwo/xport/app"
	"github.com/trickstertwo/xport/library"
	"github.com/trickstertwo/xport/library/librarytest"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeDB struct {
	*memory.Database
	rec *recorder
}

func (d fakeDB) Close(ctx context.Context) error {
	d.rec.add("close database")
	return d.Database.Close(ctx)
}

type fakeSender struct{ rec *recorder }

func (fakeSender) Send(context.Context, string) error { return nil }

func (s fakeSender) Close(context.Context) error {
	s.rec.add("close sender")
	return nil
}

type fakeInterface struct {
	rec      *recorder
	name     string
	startErr error
}

func (*fakeInterface) SetMessageBus(xport.Dispatcher) {}
func (*fakeInterface) SetView(library.BookView)       {}

func (i *fakeInterface) Start(context.Context) error { return i.startErr }

func (i *fakeInterface) Stop(context.Context) error {
	i.rec.add("stop " + i.name)
	return nil
}

func noConfig() (xport.Config, error) { return xport.Config{}, nil }

func fakeRegistry(t *testing.T, rec *recorder) *xport.Registry {
	t.Helper()
	reg := xport.NewRegistry()
	require.NoError(t, memory.Register(reg))
	require.NoError(t, reg.Register(xport.NewBuilder(xport.NewTag("fake", xport.ContextDatabase), noConfig), func(xport.Config) (any, error) {
		return fakeDB{Database: memory.NewDatabase(memory.Config{}), rec: rec}, nil
	}))
	require.NoError(t, reg.Register(xport.NewBuilder(xport.NewTag("fake", xport.ContextSender), noConfig), func(xport.Config) (any, error) {
		return fakeSender{rec: rec}, nil
	}))
	require.NoError(t, reg.Register(xport.NewBuilder(xport.NewTag("good", xport.ContextInterface), noConfig), func(xport.Config) (any, error) {
		return &fakeInterface{rec: rec, name: "good"}, nil
	}))
	require.NoError(t, reg.Register(xport.NewBuilder(xport.NewTag("broken", xport.ContextInterface), noConfig), func(xport.Config) (any, error) {
		return &fakeInterface{rec: rec, name: "broken", startErr: errors.New("port in use")}, nil
	}))
	return reg
}

func newApp(t *testing.T, cfg app.Config, reg *xport.Registry) *app.App {
	t.Helper()
	return app.New(cfg, app.WithRegistry(reg), app.WithRegisterer(prometheus.NewRegistry()))
}

func TestStart_RegistersThroughEveryLayer(t *testing.T) {
	ctx := context.Background()
	t.Setenv("HTTP_ADDR", "127.0.0.1:0")
	reg := xport.NewRegistry()
	require.NoError(t, memory.Register(reg))
	require.NoError(t, xhttp.Register(reg))

	cfg := app.Defaults()
	cfg.Senders = []string{"Memory"}
	a := newApp(t, cfg, reg)
	require.NoError(t, a.Start(ctx))
	t.Cleanup(func() { _ = a.Stop(ctx) })

	assert.True(t, a.Bus().Sealed())
	assert.Equal(t, xport.StageRunning, a.Stages()[xport.NewTag("http", xport.ContextInterface)])
	for tag, stage := range a.Stages() {
		assert.Equal(t, xport.StageRunning, stage, tag.String())
	}
	assert.Len(t, a.Stages(), 3)

	api, ok := a.Interfaces()[0].(*xhttp.Interface)
	require.True(t, ok)
	body := `{"isbn":"1","name":"Dune","author":"Frank Herbert","content":"spice"}`
	resp, err := http.Post("http://"+api.Addr()+"/books", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	sender, ok := a.Senders()[0].(*memory.Sender)
	require.True(t, ok)
	require.Len(t, sender.Payloads(), 1)
	assert.Contains(t, sender.Payloads()[0], "has been successfully registered.")
}

func TestStart_RollsBackInReverseOrder(t *testing.T) {
	rec := &recorder{}
	a := newApp(t, app.Config{
		Database:   "fake",
		Senders:    []string{"fake"},
		Interfaces: []string{"good", "broken"},
	}, fakeRegistry(t, rec))

	err := a.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port in use")
	assert.Equal(t, []string{"stop broken", "stop good", "close sender", "close database"}, rec.list())
	for tag, stage := range a.Stages() {
		assert.Equal(t, xport.StageFailed, stage, tag.String())
	}
}

func TestStart_UnknownTechnology(t *testing.T) {
	rec := &recorder{}
	a := newApp(t, app.Config{Database: "fake", Senders: []string{"carrier-pigeon"}}, fakeRegistry(t, rec))

	err := a.Start(context.Background())
	var resErr *xport.AdapterResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "carrier-pigeon", resErr.Technology)
	assert.Equal(t, []string{"close database"}, rec.list())
	assert.Equal(t, xport.StageFailed, a.Stages()[xport.NewTag("carrier-pigeon", xport.ContextSender)])
}

func TestStart_ReleasesResolvedInterfaceWhenALaterOneIsUnknown(t *testing.T) {
	rec := &recorder{}
	a := newApp(t, app.Config{
		Database:   "fake",
		Senders:    []string{"fake"},
		Interfaces: []string{"good", "carrier-pigeon"},
	}, fakeRegistry(t, rec))

	err := a.Start(context.Background())
	var resErr *xport.AdapterResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, []string{"stop good", "close sender", "close database"}, rec.list())
}

func TestStop_ReleasesEverything(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	a := newApp(t, app.Config{Database: "fake", Senders: []string{"fake"}, Interfaces: []string{"good"}}, fakeRegistry(t, rec))
	require.NoError(t, a.Start(ctx))
	require.Error(t, a.Start(ctx))

	_, err := xport.Execute[library.Book](ctx, a.Bus(), library.RegisterBookCommand{
		ISBN: librarytest.Dune.ISBN, Name: librarytest.Dune.Name, Author: librarytest.Dune.Author, Content: librarytest.Dune.Content,
	})
	require.NoError(t, err)

	require.NoError(t, a.Stop(ctx))
	require.NoError(t, a.Stop(ctx))
	assert.Equal(t, []string{"stop good", "close sender", "close database"}, rec.list())
}

func TestRun_StopsWhenContextEnds(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := app.Run(ctx, app.Config{Database: "fake", Interfaces: []string{"good"}},
		app.WithRegistry(fakeRegistry(t, rec)), app.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	assert.Equal(t, []string{"stop good", "close database"}, rec.list())
}
