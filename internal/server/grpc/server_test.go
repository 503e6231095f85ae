package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/sortwatch/internal/api"
	"github.com/and161185/sortwatch/internal/errs"
	"github.com/and161185/sortwatch/internal/limiter"
)

func TestServer_E2E_CollectorFlow(t *testing.T) {
	t.Parallel()

	f := newFixture()
	cl, stop := startBufGRPC(t, f.srv)
	defer stop()
	ctx := context.Background()

	_, err := cl.RequestCode(ctx, &api.RequestCodeRequest{Email: "ana@example.com"})
	require.NoError(t, err)

	vr, err := cl.VerifyCode(ctx, &api.VerifyCodeRequest{Email: "ana@example.com", Code: "123456"})
	require.NoError(t, err)
	require.Equal(t, "follow-up", vr.Token)
	require.NotEmpty(t, f.verify.lastIP, "peer address is passed to the limiter")

	sess, err := cl.IssueSession(ctx, &api.IssueSessionRequest{Token: vr.Token})
	require.NoError(t, err)
	require.Equal(t, int64(7), sess.CollectorID)
	require.Equal(t, "Ana Cruz", sess.CollectorName)

	ar, err := cl.AppendLog(outAuth(sess.AccessToken), &api.AppendLogRequest{Drains: []api.Drain{
		{Category: "bio", BinName: "Bin 1"},
		{Category: "RECYCABLE", BinName: "Bin 3"},
	}})
	require.NoError(t, err)
	require.Len(t, ar.Entries, 2)
	require.Equal(t, "Biodegradable", ar.Entries[0].BinCategory)
	require.Equal(t, "Recyclable", ar.Entries[1].BinCategory)
	for _, e := range ar.Entries {
		require.Equal(t, int64(7), e.CollectorID)
		require.Equal(t, "Ana Cruz", e.CollectorName)
		require.Equal(t, "Completed", e.Status)
	}

	rl, err := cl.ReadLog(ctx, &api.ReadLogRequest{})
	require.NoError(t, err)
	require.Len(t, rl.Entries, 2)
}

func TestServer_AppendLog_Auth(t *testing.T) {
	t.Parallel()

	f := newFixture()
	cl, stop := startBufGRPC(t, f.srv)
	defer stop()

	req := &api.AppendLogRequest{Drains: []api.Drain{{Category: "bio", BinName: "Bin 1"}}}

	_, err := cl.AppendLog(context.Background(), req)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	expired := sessionJWT(t, "7", "Ana Cruz", testKey, time.Now().Add(-2*time.Hour), time.Hour)
	_, err = cl.AppendLog(outAuth(expired), req)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	wrongKey := sessionJWT(t, "7", "Ana Cruz", []byte("another-key-0000"), time.Now(), time.Hour)
	_, err = cl.AppendLog(outAuth(wrongKey), req)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	ok := sessionJWT(t, "7", "Ana Cruz", testKey, time.Now(), time.Hour)
	_, err = cl.AppendLog(outAuth(ok), &api.AppendLogRequest{})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = cl.AppendLog(outAuth(ok), &api.AppendLogRequest{Drains: []api.Drain{{Category: "bio"}}})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
	require.Empty(t, f.log.entries, "rejected batches write nothing")
}

func TestServer_DeviceStatusAndResolve(t *testing.T) {
	t.Parallel()

	f := newFixture()
	cl, stop := startBufGRPC(t, f.srv)
	defer stop()
	ctx := context.Background()

	st, err := cl.DeviceStatus(ctx, &api.DeviceStatusRequest{})
	require.NoError(t, err)
	require.True(t, st.Connected)
	require.Equal(t, "Recyclable", st.LastCategory)
	require.Equal(t, "RECYCABLE", st.LastLine)

	rb, err := cl.ResolveBin(ctx, &api.ResolveBinRequest{Category: "bio"})
	require.NoError(t, err)
	require.Equal(t, api.ResolveBinResponse{Category: "Biodegradable", BinID: 1, Found: true}, *rb)

	rb, err = cl.ResolveBin(ctx, &api.ResolveBinRequest{Category: "plasma"})
	require.NoError(t, err)
	require.Equal(t, "Unsorted", rb.Category)
	require.False(t, rb.Found)
}

func TestServer_AggregateAndBinFill(t *testing.T) {
	t.Parallel()

	f := newFixture()
	cl, stop := startBufGRPC(t, f.srv)
	defer stop()
	ctx := context.Background()

	end := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	agg, err := cl.Aggregate(ctx, &api.AggregateRequest{BinIDs: []int64{1, 2}, Window: &api.Window{End: &end}})
	require.NoError(t, err)
	require.Len(t, agg.Buckets, 8)
	require.Equal(t, []int64{1, 2}, f.agg.lastIDs)
	require.NotNil(t, f.agg.lastWindow)
	require.True(t, f.agg.lastWindow.End.Equal(end))

	start := end.Add(time.Hour)
	_, err = cl.Aggregate(ctx, &api.AggregateRequest{BinIDs: []int64{1}, Window: &api.Window{Start: &start, End: &end}})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	bf, err := cl.BinFill(ctx, &api.BinFillRequest{})
	require.NoError(t, err)
	require.Len(t, bf.Bins, 1)
	require.Equal(t, "Bio bin", bf.Bins[0].Name)
	require.Nil(t, f.bins.lastIDs, "no ids reads active bins")

	bf, err = cl.BinFill(ctx, &api.BinFillRequest{BinIDs: []int64{2, 99}})
	require.NoError(t, err)
	require.Len(t, bf.Bins, 1)
	require.Equal(t, "Inactive", bf.Bins[0].Status)
	require.Equal(t, 50, bf.Bins[0].FillPercentage)
}

func TestServer_VerifyErrors(t *testing.T) {
	t.Parallel()

	f := newFixture()
	cl, stop := startBufGRPC(t, f.srv)
	defer stop()
	ctx := context.Background()

	_, err := cl.VerifyCode(ctx, &api.VerifyCodeRequest{Email: "ana@example.com"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = cl.VerifyCode(ctx, &api.VerifyCodeRequest{Email: "ana@example.com", Code: "999999"})
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = cl.VerifyCode(ctx, &api.VerifyCodeRequest{Email: "ana@example.com", Code: "000000"})
	require.Equal(t, codes.ResourceExhausted, status.Code(err))

	_, err = cl.IssueSession(ctx, &api.IssueSessionRequest{Token: "stale"})
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = cl.RequestCode(ctx, &api.RequestCodeRequest{})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestToStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("x: %w", errs.ErrInvalidInput), codes.InvalidArgument},
		{errs.ErrNotFound, codes.NotFound},
		{errs.ErrUnauthorized, codes.Unauthenticated},
		{errs.ErrRateLimited, codes.ResourceExhausted},
		{fmt.Errorf("append: %w", errs.ErrAlreadyExists), codes.AlreadyExists},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("db down"), codes.Internal},
	}
	for _, c := range cases {
		require.Equal(t, c.want, status.Code(toStatus("op", c.err)), "err %v", c.err)
	}
}

func Test_parseCollector(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	c, err := parseCollector(sessionJWT(t, "12", "Ben", testKey, now.Add(-time.Minute), time.Hour), testKey)
	require.NoError(t, err)
	require.Equal(t, Collector{ID: 12, Name: "Ben"}, c)

	_, err = parseCollector(sessionJWT(t, "not-a-number", "Ben", testKey, now, time.Hour), testKey)
	require.Error(t, err)

	_, err = parseCollector(sessionJWT(t, "0", "Ben", testKey, now, time.Hour), testKey)
	require.Error(t, err)

	hs384, err := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.RegisteredClaims{Subject: "12"}).SignedString(testKey)
	require.NoError(t, err)
	_, err = parseCollector(hs384, testKey)
	require.Error(t, err)

	_, err = parseCollector("this-is-not-a-jwt", testKey)
	require.Error(t, err)
}

func Test_remoteIP_EmptyIsOk(t *testing.T) {
	if got := remoteIP(context.Background()); got != "" {
		t.Fatalf("want empty, got %q", got)
	}
}

type rawAddr string

func (a rawAddr) Network() string { return "unix" }
func (a rawAddr) String() string  { return string(a) }

func Test_remoteIP_StripsPort(t *testing.T) {
	t.Parallel()
	onPeer := func(a net.Addr) context.Context {
		return peer.NewContext(context.Background(), &peer.Peer{Addr: a})
	}

	first := remoteIP(onPeer(&net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 50001}))
	second := remoteIP(onPeer(&net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 50002}))
	require.Equal(t, "10.0.0.1", first)
	require.Equal(t, first, second)
	require.Equal(t, limiter.HashIP(first), limiter.HashIP(second), "one client, one lockout key")

	v6 := remoteIP(onPeer(&net.TCPAddr{IP: net.ParseIP("2001:db8::1"), Port: 443}))
	require.Equal(t, "2001:db8::1", v6)

	other := remoteIP(onPeer(&net.TCPAddr{IP: net.ParseIP("10.0.0.2"), Port: 50001}))
	require.NotEqual(t, limiter.HashIP(first), limiter.HashIP(other))

	require.Equal(t, "@sortwatch.sock", remoteIP(onPeer(rawAddr("@sortwatch.sock"))))
}
