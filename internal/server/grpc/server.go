// Package grpcserver exposes the SortWatch gRPC API handlers.
package grpcserver

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/sortwatch/internal/api"
	"github.com/and161185/sortwatch/internal/category"
	"github.com/and161185/sortwatch/internal/convert"
	"github.com/and161185/sortwatch/internal/device"
	"github.com/and161185/sortwatch/internal/errs"
	"github.com/and161185/sortwatch/internal/model"
	"github.com/and161185/sortwatch/internal/repository"
	"github.com/and161185/sortwatch/internal/service"
)

// StatusSource provides device snapshots.
type StatusSource interface {
	Snapshot() device.State
}

// Aggregator computes fill levels.
type Aggregator interface {
	Aggregate(ctx context.Context, binIDs []int64, window *model.TimeRange) ([]model.CategoryAggregate, error)
	AggregateBins(ctx context.Context, bins []model.Bin, window *model.TimeRange) ([]model.BinFill, error)
}

// CollectionLog is the drain log.
type CollectionLog interface {
	Append(ctx context.Context, reqs []model.DrainRequest) ([]model.CollectionEntry, error)
	ReadAll(ctx context.Context) ([]model.CollectionEntry, error)
}

// Deps are the collaborators behind the handlers.
type Deps struct {
	Status   StatusSource
	Resolver service.BinResolver
	Bins     repository.BinRepository
	Agg      Aggregator
	Log      CollectionLog
	Verify   service.VerifyService
}

// Server wires services into gRPC handlers.
type Server struct {
	d Deps
}

var _ api.SortWatchServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(d Deps) *Server {
	return &Server{d: d}
}

// toStatus maps domain sentinels to gRPC codes.
func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		return status.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	case errors.Is(err, errs.ErrNotFound):
		return status.Errorf(codes.NotFound, "%s: not found", op)
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Errorf(codes.Unauthenticated, "%s: unauthorized", op)
	case errors.Is(err, errs.ErrRateLimited):
		return status.Errorf(codes.ResourceExhausted, "%s: rate limited", op)
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Errorf(codes.AlreadyExists, "%s: already exists", op)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s: canceled", op)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s: deadline exceeded", op)
	default:
		return status.Errorf(codes.Internal, "%s: %v", op, err)
	}
}

// remoteIP returns the peer host without its port, so every connection from
// one client shares a lockout record.
func remoteIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// --- Device ---

// DeviceStatus returns the current decoder snapshot.
func (s *Server) DeviceStatus(context.Context, *api.DeviceStatusRequest) (*api.DeviceStatusResponse, error) {
	return convert.ToAPIDeviceStatus(s.d.Status.Snapshot()), nil
}

// ResolveBin maps a category label to the bin that collects it. No bin is a
// valid answer, not an error.
func (s *Server) ResolveBin(ctx context.Context, req *api.ResolveBinRequest) (*api.ResolveBinResponse, error) {
	c := category.Normalize(req.Category)
	id, ok, err := s.d.Resolver.Resolve(ctx, c)
	if err != nil {
		return nil, toStatus("resolve bin", err)
	}
	return &api.ResolveBinResponse{Category: c.String(), BinID: id, Found: ok}, nil
}

// --- Aggregation ---

// Aggregate returns four category buckets per requested bin.
func (s *Server) Aggregate(ctx context.Context, req *api.AggregateRequest) (*api.AggregateResponse, error) {
	window, err := convert.FromAPIWindow(req.Window)
	if err != nil {
		return nil, toStatus("aggregate", err)
	}
	buckets, err := s.d.Agg.Aggregate(ctx, req.BinIDs, window)
	if err != nil {
		return nil, toStatus("aggregate", err)
	}
	return &api.AggregateResponse{Buckets: convert.ToAPICategoryFills(buckets)}, nil
}

// BinFill returns whole-bin cards. Without ids every active bin is reported.
func (s *Server) BinFill(ctx context.Context, req *api.BinFillRequest) (*api.BinFillResponse, error) {
	window, err := convert.FromAPIWindow(req.Window)
	if err != nil {
		return nil, toStatus("bin fill", err)
	}

	var bins []model.Bin
	if len(req.BinIDs) == 0 {
		bins, err = s.d.Bins.ListActive(ctx)
	} else {
		bins, err = s.d.Bins.ListByIDs(ctx, req.BinIDs)
	}
	if err != nil {
		return nil, toStatus("bin fill", err)
	}

	fills, err := s.d.Agg.AggregateBins(ctx, bins, window)
	if err != nil {
		return nil, toStatus("bin fill", err)
	}
	return &api.BinFillResponse{Bins: convert.ToAPIBinFills(fills)}, nil
}

// --- Collection log ---

// AppendLog records a batch of drains for the authenticated collector.
func (s *Server) AppendLog(ctx context.Context, req *api.AppendLogRequest) (*api.AppendLogResponse, error) {
	c, ok := CollectorFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	if len(req.Drains) == 0 {
		return nil, status.Error(codes.InvalidArgument, "empty drain batch")
	}
	entries, err := s.d.Log.Append(ctx, convert.FromAPIDrains(req.Drains, c.ID, c.Name))
	if err != nil {
		return nil, toStatus("append log", err)
	}
	return &api.AppendLogResponse{Entries: convert.ToAPILogEntries(entries)}, nil
}

// ReadLog returns the full log, newest drain first.
func (s *Server) ReadLog(ctx context.Context, _ *api.ReadLogRequest) (*api.ReadLogResponse, error) {
	entries, err := s.d.Log.ReadAll(ctx)
	if err != nil {
		return nil, toStatus("read log", err)
	}
	return &api.ReadLogResponse{Entries: convert.ToAPILogEntries(entries)}, nil
}

// --- Verification ---

// RequestCode sends a one-time code. Unknown emails get the same reply.
func (s *Server) RequestCode(ctx context.Context, req *api.RequestCodeRequest) (*api.RequestCodeResponse, error) {
	if err := s.d.Verify.RequestCode(ctx, req.Email); err != nil {
		return nil, toStatus("request code", err)
	}
	return &api.RequestCodeResponse{}, nil
}

// VerifyCode checks a code and returns the single-use follow-up token.
func (s *Server) VerifyCode(ctx context.Context, req *api.VerifyCodeRequest) (*api.VerifyCodeResponse, error) {
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Code) == "" {
		return nil, status.Error(codes.InvalidArgument, "empty email/code")
	}
	tok, err := s.d.Verify.VerifyCode(ctx, req.Email, req.Code, remoteIP(ctx))
	if err != nil {
		return nil, toStatus("verify code", err)
	}
	return &api.VerifyCodeResponse{Token: tok}, nil
}

// IssueSession exchanges a follow-up token for a bearer token.
func (s *Server) IssueSession(ctx context.Context, req *api.IssueSessionRequest) (*api.IssueSessionResponse, error) {
	if req.Token == "" {
		return nil, status.Error(codes.InvalidArgument, "empty token")
	}
	sess, err := s.d.Verify.IssueSession(ctx, req.Token)
	if err != nil {
		return nil, toStatus("issue session", err)
	}
	return &api.IssueSessionResponse{
		AccessToken:   sess.AccessToken,
		ExpiresAt:     sess.ExpiresAt.UTC(),
		CollectorID:   sess.User.ID,
		CollectorName: sess.User.DisplayName(),
	}, nil
}

// parseCollector verifies an HS256 session token and returns its identity.
func parseCollector(tok string, signKey []byte) (Collector, error) {
	var claims service.CollectorClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return signKey, nil
	}, jwt.WithLeeway(30*time.Second))
	if err != nil || !parsed.Valid {
		return Collector{}, errors.New("invalid token")
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Collector{}, errors.New("bad subject")
	}
	return Collector{ID: id, Name: claims.Name}, nil
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
