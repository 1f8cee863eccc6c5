package gcisigner

import (
	"context"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/smithy-go/logging"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/thomasdesr/vaultiam/gcisigner/awsapi"
	"github.com/thomasdesr/vaultiam/gcisigner/sigv4"
	"github.com/thomasdesr/vaultiam/header"
	"github.com/thomasdesr/vaultiam/internal/errorutil"
)

// ErrCredentials marks failures to obtain usable AWS credentials. Signing
// stops at that point, so nothing has been sent anywhere.
const ErrCredentials = errors.ConstError("aws credentials unavailable")

// Signer signs GetCallerIdentity requests.
type Signer interface {
	Sign(ctx context.Context, req *Request) (*SignedRequest, error)
}

type engine int

const (
	engineNative engine = iota
	engineSDK
)

type SigV4Signer struct {
	creds  aws.CredentialsProvider
	engine engine

	sdkSigner *v4.Signer
	logger    log.FieldLogger

	nowFunc func() time.Time
}

var _ Signer = &SigV4Signer{}

type Option func(*SigV4Signer)

// WithClock overrides the signing time source.
func WithClock(now func() time.Time) Option {
	return func(s *SigV4Signer) {
		s.nowFunc = now
	}
}

// WithLogger sends signing debug output, including the SDK signer's
// canonical request dump, to logger.
func WithLogger(logger log.FieldLogger) Option {
	return func(s *SigV4Signer) {
		s.logger = logger
	}
}

// NewSigner returns a signer backed by the sigv4 package.
func NewSigner(creds aws.CredentialsProvider, opts ...Option) *SigV4Signer {
	return newSigner(creds, engineNative, opts)
}

// NewSDKSigner returns a signer backed by the aws-sdk-go-v2 v4 signer. It
// produces the same headers as NewSigner.
func NewSDKSigner(creds aws.CredentialsProvider, opts ...Option) *SigV4Signer {
	s := newSigner(creds, engineSDK, opts)
	s.sdkSigner = v4.NewSigner(func(o *v4.SignerOptions) {
		o.Logger = logging.LoggerFunc(func(_ logging.Classification, format string, v ...interface{}) {
			s.logger.Debugf(format, v...)
		})
		o.LogSigning = s.logger != discard
	})
	return s
}

func newSigner(creds aws.CredentialsProvider, e engine, opts []Option) *SigV4Signer {
	s := &SigV4Signer{
		creds:   creds,
		engine:  e,
		logger:  discard,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign retrieves credentials once and signs req with them for
// sts/us-east-1. req is not modified.
func (s *SigV4Signer) Sign(ctx context.Context, req *Request) (*SignedRequest, error) {
	if s.creds == nil {
		return nil, errors.WithType(errors.New("no credentials provider configured"), ErrCredentials)
	}

	creds, err := s.creds.Retrieve(ctx)
	if err != nil {
		return nil, errors.WithType(err, ErrCredentials)
	}

	signingTime := s.nowFunc().UTC()
	if err := usable(creds, signingTime); err != nil {
		return nil, errors.WithType(err, ErrCredentials)
	}

	var added header.Map
	switch s.engine {
	case engineSDK:
		added, err = s.signSDK(ctx, creds, req, signingTime)
	default:
		added, err = s.signNative(creds, req, signingTime)
	}
	if err != nil {
		return nil, err
	}

	return &SignedRequest{
		Request:     req,
		Headers:     added,
		SigningTime: signingTime,
	}, nil
}

func usable(creds aws.Credentials, at time.Time) error {
	if !creds.HasKeys() {
		return errors.Errorf("credentials from %q are missing an access key or secret", creds.Source)
	}
	if creds.CanExpire && !at.Before(creds.Expires) {
		return errors.Errorf("credentials from %q expired at %s", creds.Source, creds.Expires.Format(time.RFC3339))
	}
	return nil
}

func (s *SigV4Signer) signNative(creds aws.Credentials, req *Request, signingTime time.Time) (header.Map, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return header.Map{}, errorutil.Wrapf(err, "parsing request url %q", req.URL)
	}

	res := sigv4.Sign(sigv4.Request{
		Method: req.Method,
		URL:    u,
		Header: req.Headers,
		Body:   req.Body,
	}, creds, sigv4.Scope{
		Region:  awsapi.SigningRegion.String(),
		Service: awsapi.SigningService,
	}, signingTime)

	s.logger.WithFields(log.Fields{
		"scope":          res.CredentialScope,
		"signed_headers": res.SignedHeaders,
	}).Debugf("signed request\n---[ CANONICAL STRING ]---\n%s\n---[ STRING TO SIGN ]---\n%s", res.CanonicalRequest, res.StringToSign)

	return res.Headers, nil
}

func (s *SigV4Signer) signSDK(ctx context.Context, creds aws.Credentials, req *Request, signingTime time.Time) (header.Map, error) {
	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return header.Map{}, err
	}

	err = s.sdkSigner.SignHTTP(ctx,
		creds,
		httpReq,
		sigv4.HashPayload(req.Body),
		awsapi.SigningService,
		awsapi.SigningRegion.String(),
		signingTime,
	)
	if err != nil {
		return header.Map{}, errorutil.Wrap(err, "sigv4 signing")
	}

	var added header.Map
	for _, name := range []string{sigv4.AmzDateHeader, sigv4.SecurityTokenHeader, sigv4.AuthorizationHeader} {
		if v := httpReq.Header.Get(name); v != "" {
			added.Add(name, v)
		}
	}
	return added, nil
}

var discard log.FieldLogger = func() *log.Logger {
	l := log.New()
	l.SetLevel(log.PanicLevel)
	return l
}()
