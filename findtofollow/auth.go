package findtofollow

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"time"

	atcrypto "github.com/bluesky-social/indigo/atproto/crypto"
	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrWrongKeyFormat = errors.New("wrong key type")
	ErrBadSignature   = errors.New("bad signature")
	ErrWrongMethod    = errors.New("token not issued for this method")
)

func (s *Server) getKeyForDid(ctx context.Context, did syntax.DID) (crypto.PublicKey, error) {
	if s.directory == nil {
		return nil, fmt.Errorf("no identity directory configured")
	}

	ident, err := s.directory.LookupDID(ctx, did)
	if err != nil {
		return nil, err
	}

	return ident.PublicKey()
}

func (s *Server) fetchKeyFunc(ctx context.Context) func(tok *jwt.Token) (any, error) {
	return func(tok *jwt.Token) (any, error) {
		issuer, err := tok.Claims.GetIssuer()
		if err != nil || issuer == "" {
			return nil, fmt.Errorf("missing 'iss' field from auth header JWT")
		}
		did, err := syntax.ParseDID(issuer)
		if err != nil {
			return nil, fmt.Errorf("invalid DID in 'iss' field from auth header JWT")
		}

		if val, ok := s.keyCache.Get(did.String()); ok {
			return val, nil
		}

		k, err := s.getKeyForDid(ctx, did)
		if err != nil {
			return nil, fmt.Errorf("failed to look up public key for DID (%q): %w", did, err)
		}
		s.keyCache.Add(did.String(), k)
		return k, nil
	}
}

// checkJwt validates an atproto inter-service token addressed to this
// service for the given lexicon method and returns the caller's DID.
func (s *Server) checkJwt(ctx context.Context, tok string, method string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return s.checkJwtConfig(ctx, tok, method)
}

func (s *Server) checkJwtConfig(ctx context.Context, tok string, method string, config ...jwt.ParserOption) (string, error) {
	config = append(config,
		jwt.WithValidMethods([]string{SigningMethodES256K.Alg(), SigningMethodES256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if s.args.ServiceDid != "" {
		config = append(config, jwt.WithAudience(s.args.ServiceDid))
	}

	p := jwt.NewParser(config...)
	t, err := p.Parse(tok, s.fetchKeyFunc(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to parse auth header jwt: %w", err)
	}

	clms, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	if lxm, ok := clms["lxm"].(string); ok && lxm != method {
		return "", ErrWrongMethod
	}

	did, err := clms.GetIssuer()
	if err != nil || did == "" {
		return "", fmt.Errorf("no issuer present in returned claims")
	}

	return did, nil
}

// SigningMethodAtproto verifies (and, for tests and tooling, creates) the
// low-S ECDSA signatures atproto uses for service auth tokens. Keys are
// indigo atproto/crypto keys rather than crypto/ecdsa keys.
type SigningMethodAtproto struct {
	alg    string
	sigLen int
}

var (
	SigningMethodES256K = &SigningMethodAtproto{alg: "ES256K", sigLen: 64}
	SigningMethodES256  = &SigningMethodAtproto{alg: "ES256", sigLen: 64}
)

func init() {
	for _, m := range []*SigningMethodAtproto{SigningMethodES256K, SigningMethodES256} {
		jwt.RegisterSigningMethod(m.Alg(), func() jwt.SigningMethod {
			return m
		})
	}
}

func (sm *SigningMethodAtproto) Alg() string {
	return sm.alg
}

func (sm *SigningMethodAtproto) Verify(signingString string, sig []byte, key any) error {
	pub, ok := key.(atcrypto.PublicKey)
	if !ok {
		return ErrWrongKeyFormat
	}

	if len(sig) != sm.sigLen {
		return ErrBadSignature
	}

	return pub.HashAndVerifyLenient([]byte(signingString), sig)
}

func (sm *SigningMethodAtproto) Sign(signingString string, key any) ([]byte, error) {
	priv, ok := key.(atcrypto.PrivateKey)
	if !ok {
		return nil, ErrWrongKeyFormat
	}

	return priv.HashAndSign([]byte(signingString))
}
