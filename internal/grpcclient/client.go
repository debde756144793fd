// Package grpcclient talks to an out-of-process OCR engine over gRPC.
// The engine exposes one unary method using well-known protobuf types,
// so no generated stubs are needed on this side.
package grpcclient

import (
	"context"
	"errors"
	"image"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/transcendia/platform/internal/errors"
	"github.com/transcendia/platform/internal/ocr"
	"github.com/transcendia/platform/internal/resilience"
	"github.com/transcendia/platform/internal/trace"
)

func init() {
	ocr.Register("grpc", func(o ocr.Options) (ocr.Recognizer, error) {
		return New(o.Addr, WithModelDir(o.ModelDir), WithLanguages(o.Languages...))
	})
}

// Client is an ocr.Recognizer backed by a remote engine.
type Client struct {
	conn     *grpc.ClientConn
	health   grpc_health_v1.HealthClient
	breaker  *resilience.Breaker
	retry    resilience.RetryConfig
	timeout  time.Duration
	modelDir string
	langs    []string
	dialOpts []grpc.DialOption
}

// Option customises a Client.
type Option func(*Client)

// WithModelDir forwards the model directory with every call.
func WithModelDir(dir string) Option { return func(c *Client) { c.modelDir = dir } }

// WithLanguages forwards language hints with every call.
func WithLanguages(langs ...string) Option { return func(c *Client) { c.langs = langs } }

// WithCallTimeout bounds each attempt.
func WithCallTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option { return func(c *Client) { c.retry = cfg } }

// WithDialOptions appends dial options (tests use it for in-memory listeners).
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) { c.dialOpts = append(c.dialOpts, opts...) }
}

// New creates a client for the engine at addr. The connection is lazy.
func New(addr string, opts ...Option) (*Client, error) {
	c := &Client{
		breaker: resilience.New("ocr", resilience.OCRConfig()),
		retry:   resilience.OCRRetryConfig(),
		timeout: DefaultCallTimeout,
	}
	for _, o := range opts {
		o(c)
	}

	dial := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    DefaultKeepaliveTime,
			Timeout: DefaultKeepaliveTimeout,
		}),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor()),
	}, c.dialOpts...)

	conn, err := grpc.NewClient(addr, dial...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ConfigInvalid, "ocr engine address %q", addr)
	}
	c.conn = conn
	c.health = grpc_health_v1.NewHealthClient(conn)
	return c, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Prepare(img image.Image) (ocr.Prepared, error) {
	return ocr.EncodeGray(img)
}

// Recognize sends the frame to the engine and returns its text lines.
func (c *Client) Recognize(ctx context.Context, in ocr.Prepared) ([]string, error) {
	md := []string{}
	if c.modelDir != "" {
		md = append(md, ModelDirKey, c.modelDir)
	}
	if len(c.langs) > 0 {
		md = append(md, LanguagesKey, strings.Join(c.langs, ","))
	}
	if len(md) > 0 {
		ctx = metadata.AppendToOutgoingContext(ctx, md...)
	}

	out := &structpb.ListValue{}
	err := resilience.Retry(ctx, c.retry, func() error {
		return c.breaker.Execute(func() error {
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			return c.conn.Invoke(callCtx, RecognizeMethod, wrapperspb.Bytes(in.PNG), out)
		})
	})
	if errors.Is(err, resilience.ErrOpen) {
		return nil, apperrors.Wrap(err, apperrors.Unavailable, "ocr engine failing, call skipped")
	}
	if err != nil {
		remote := apperrors.FromGRPCError(err)
		return nil, apperrors.Wrapf(remote, apperrors.RecognitionFailed, "recognize %s", in)
	}

	lines := make([]string, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
			lines = append(lines, s.StringValue)
		}
	}
	return lines, nil
}

// Healthy reports whether the engine answers the standard health check.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()
	resp, err := c.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	return err == nil && resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING
}
