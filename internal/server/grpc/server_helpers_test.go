package grpcserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"

	"github.com/and161185/sortwatch/internal/api"
	"github.com/and161185/sortwatch/internal/category"
	"github.com/and161185/sortwatch/internal/device"
	"github.com/and161185/sortwatch/internal/errs"
	"github.com/and161185/sortwatch/internal/model"
	"github.com/and161185/sortwatch/internal/service"
)

type fakeStatus struct{ st device.State }

func (f fakeStatus) Snapshot() device.State { return f.st }

type fakeResolver struct {
	bins map[category.Category]int64
	err  error
}

func (f fakeResolver) Resolve(_ context.Context, c category.Category) (int64, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	id, ok := f.bins[c]
	return id, ok, nil
}

type fakeBins struct {
	active  []model.Bin
	byID    map[int64]model.Bin
	lastIDs []int64
}

func (f *fakeBins) ListActive(context.Context) ([]model.Bin, error) { return f.active, nil }

func (f *fakeBins) ListByIDs(_ context.Context, ids []int64) ([]model.Bin, error) {
	f.lastIDs = ids
	var out []model.Bin
	for _, id := range ids {
		if b, ok := f.byID[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeAgg struct {
	lastIDs    []int64
	lastWindow *model.TimeRange
	lastBins   []model.Bin
	err        error
}

func (f *fakeAgg) Aggregate(_ context.Context, ids []int64, w *model.TimeRange) ([]model.CategoryAggregate, error) {
	f.lastIDs, f.lastWindow = ids, w
	if f.err != nil {
		return nil, f.err
	}
	var out []model.CategoryAggregate
	for _, id := range ids {
		for _, c := range category.All() {
			out = append(out, model.CategoryAggregate{BinID: id, Category: c})
		}
	}
	return out, nil
}

func (f *fakeAgg) AggregateBins(_ context.Context, bins []model.Bin, w *model.TimeRange) ([]model.BinFill, error) {
	f.lastBins, f.lastWindow = bins, w
	out := make([]model.BinFill, 0, len(bins))
	for _, b := range bins {
		out = append(out, model.BinFill{Bin: b, Count: 25, RawPercentage: 50, FillPercentage: 50})
	}
	return out, nil
}

type fakeLog struct {
	mu      sync.Mutex
	entries []model.CollectionEntry
}

func (f *fakeLog) Append(_ context.Context, reqs []model.DrainRequest) ([]model.CollectionEntry, error) {
	if len(reqs) == 0 {
		return nil, errs.ErrInvalidInput
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.CollectionEntry
	for i, r := range reqs {
		out = append(out, model.CollectionEntry{
			ID:            "id-" + string(rune('a'+len(f.entries)+i)),
			BinCategory:   category.Normalize(r.Category),
			BinName:       r.BinName,
			CollectorID:   r.CollectorID,
			CollectorName: r.CollectorName,
			DrainedAt:     time.Now().UTC(),
			Status:        model.CollectionStatusCompleted,
		})
	}
	f.entries = append(out, f.entries...)
	return out, nil
}

func (f *fakeLog) ReadAll(context.Context) ([]model.CollectionEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.CollectionEntry(nil), f.entries...), nil
}

type fakeVerify struct {
	key    []byte
	lastIP string
}

func (f *fakeVerify) RequestCode(_ context.Context, email string) error {
	if email == "" {
		return errs.ErrInvalidInput
	}
	return nil
}

func (f *fakeVerify) VerifyCode(_ context.Context, _, code, ip string) (string, error) {
	f.lastIP = ip
	switch code {
	case "123456":
		return "follow-up", nil
	case "000000":
		return "", errs.ErrRateLimited
	default:
		return "", errs.ErrUnauthorized
	}
}

func (f *fakeVerify) ConsumeToken(context.Context, string) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeVerify) IssueSession(_ context.Context, token string) (service.Session, error) {
	if token != "follow-up" {
		return service.Session{}, errs.ErrUnauthorized
	}
	exp := time.Now().Add(time.Hour)
	u := model.User{ID: 7, FirstName: "Ana", LastName: "Cruz", Email: "ana@example.com"}
	claims := service.CollectorClaims{
		Name: u.DisplayName(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "7",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(f.key)
	if err != nil {
		return service.Session{}, err
	}
	return service.Session{AccessToken: s, ExpiresAt: exp, User: u}, nil
}

const bufSize = 1 << 20

var testKey = []byte("0123456789abcdef")

type fixture struct {
	srv    *Server
	bins   *fakeBins
	agg    *fakeAgg
	log    *fakeLog
	verify *fakeVerify
}

func newFixture() *fixture {
	b1 := model.Bin{ID: 1, Name: "Bio bin", Status: model.BinActive, Capacity: 50}
	b2 := model.Bin{ID: 2, Name: "Bin 2", Status: model.BinInactive, Capacity: 50}
	f := &fixture{
		bins:   &fakeBins{active: []model.Bin{b1}, byID: map[int64]model.Bin{1: b1, 2: b2}},
		agg:    &fakeAgg{},
		log:    &fakeLog{},
		verify: &fakeVerify{key: testKey},
	}
	last := category.Recyclable
	f.srv = New(Deps{
		Status:   fakeStatus{st: device.State{Connected: true, LastCategory: &last, LastLine: "RECYCABLE"}},
		Resolver: fakeResolver{bins: map[category.Category]int64{category.Biodegradable: 1}},
		Bins:     f.bins,
		Agg:      f.agg,
		Log:      f.log,
		Verify:   f.verify,
	})
	return f
}

func startBufGRPC(t *testing.T, srv *Server) (*api.Client, func()) {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	log := zaptest.NewLogger(t)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log), AuthUnary(testKey)))
	api.RegisterSortWatchServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	//nolint:staticcheck // DialContext is supported through 1.x
	cc, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	stop := func() { _ = cc.Close(); gs.Stop(); _ = lis.Close() }
	return api.NewClient(cc), stop
}

func sessionJWT(t *testing.T, sub, name string, key []byte, iat time.Time, ttl time.Duration) string {
	t.Helper()
	claims := service.CollectorClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(iat),
			NotBefore: jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(iat.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func ctxAuth(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(),
		metadata.Pairs("authorization", "Bearer "+token))
}

func outAuth(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}
