package httpserver

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signed requests carry a secp256k1 signature over RequestDigest. The
// recovered address is the acting account.
const (
	HeaderSignature = "X-Escrow-Signature"
	HeaderTimestamp = "X-Escrow-Timestamp"

	// MaxSignatureAge bounds how far a request timestamp may drift from the
	// service clock in either direction.
	MaxSignatureAge = 5 * time.Minute
)

var (
	errUnsigned       = errors.New("request is not signed")
	errBadSignature   = errors.New("invalid request signature")
	errStaleSignature = errors.New("request signature outside the allowed time window")
)

// RequestDigest is the hash a client signs: method, path, unix timestamp and
// the keccak256 of the body.
func RequestDigest(method, path string, timestamp int64, body []byte) common.Hash {
	return crypto.Keccak256Hash(
		[]byte(method), []byte{'\n'},
		[]byte(path), []byte{'\n'},
		[]byte(strconv.FormatInt(timestamp, 10)), []byte{'\n'},
		crypto.Keccak256(body),
	)
}

// SignRequest sets the signature headers on req. body must be the exact bytes
// sent.
func SignRequest(req *http.Request, key *ecdsa.PrivateKey, body []byte, at time.Time) error {
	ts := at.Unix()
	sig, err := crypto.Sign(RequestDigest(req.Method, req.URL.Path, ts, body).Bytes(), key)
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, hexutil.Encode(sig))
	return nil
}

// recoverSigner returns the address that signed r.
func recoverSigner(r *http.Request, body []byte, now time.Time) (common.Address, error) {
	sigHex := r.Header.Get(HeaderSignature)
	if sigHex == "" {
		return common.Address{}, errUnsigned
	}
	ts, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return common.Address{}, errBadSignature
	}
	at := time.Unix(ts, 0)
	if at.Before(now.Add(-MaxSignatureAge)) || at.After(now.Add(MaxSignatureAge)) {
		return common.Address{}, errStaleSignature
	}

	sig, err := hexutil.Decode(sigHex)
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, errBadSignature
	}
	pub, err := crypto.SigToPub(RequestDigest(r.Method, r.URL.Path, ts, body).Bytes(), sig)
	if err != nil {
		return common.Address{}, errBadSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// authenticate resolves the acting account for a request. A signed request
// acts as its signer, and claimed (the address named in the body) must be
// empty or equal to it. Unsigned requests are accepted only when required is
// false; they act as claimed, which is attribution only.
func (h *APIHandler) authenticate(w http.ResponseWriter, r *http.Request, body []byte,
	field, claimed string, required bool,
) (common.Address, bool) {
	signer, err := recoverSigner(r, body, h.engine.Now())
	switch {
	case err == nil:
		if claimed == "" {
			return signer, true
		}
		addr, ok := parseAddress(claimed)
		if !ok || addr != signer {
			h.writeAuthError(w, "request signer does not match "+field)
			return common.Address{}, false
		}
		return signer, true
	case errors.Is(err, errUnsigned) && !required:
		addr, ok := parseAddress(claimed)
		if !ok {
			h.writeError(w, field+" must be a hex address", http.StatusBadRequest)
			return common.Address{}, false
		}
		return addr, true
	case errors.Is(err, errUnsigned):
		h.writeAuthError(w, "request must be signed by the "+field)
		return common.Address{}, false
	default:
		h.writeAuthError(w, err.Error())
		return common.Address{}, false
	}
}
