package relayer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/mselser95/reservation-escrow/internal/proof"
)

var (
	ErrInvalidCommand      = errors.New("subject must start with LIST, CANCEL or CLAIM")
	ErrUnsupportedPlatform = errors.New("sender is not a supported reservation platform")
)

const (
	defaultRestaurant = "Test Restaurant"
	defaultPartySize  = 2
	defaultLeadTime   = 7 * 24 * time.Hour
)

// ParseCommand reads the command word and its parameters from a subject
// line. The command word is case-insensitive.
func ParseCommand(subject string) (Command, error) {
	parts := strings.Fields(subject)
	if len(parts) == 0 {
		return Command{}, ErrInvalidCommand
	}

	var t CommandType
	switch CommandType(strings.ToUpper(parts[0])) {
	case CommandList:
		t = CommandList
	case CommandCancel:
		t = CommandCancel
	case CommandClaim:
		t = CommandClaim
	default:
		return Command{}, ErrInvalidCommand
	}

	return Command{Type: t, Params: parts[1:]}, nil
}

// PlatformFromSender maps the sender's domain to a platform.
func PlatformFromSender(from string) (proof.Platform, error) {
	addr := strings.ToLower(strings.TrimSpace(from))
	if i := strings.LastIndex(addr, "<"); i >= 0 {
		addr = strings.TrimSuffix(addr[i+1:], ">")
	}
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, from)
	}
	domain := addr[at+1:]

	switch {
	case domain == "opentable.com" || strings.HasSuffix(domain, ".opentable.com"):
		return proof.PlatformOpenTable, nil
	case domain == "resy.com" || strings.HasSuffix(domain, ".resy.com"):
		return proof.PlatformResy, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, from)
	}
}

// details are the reservation facts read from an email body.
type details struct {
	Restaurant string
	Time       time.Time
	PartySize  int
}

// parseBody reads "Key: value" lines. Recognized keys are restaurant,
// time and party (with a few aliases). A "... at <Restaurant>" line is
// accepted when no restaurant key is present. Missing facts fall back to
// defaults relative to now.
func parseBody(body string, now time.Time) (details, error) {
	d := details{}

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			if d.Restaurant == "" {
				if _, after, found := strings.Cut(" "+line, " at "); found {
					d.Restaurant = strings.TrimSpace(after)
				}
			}
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(key)) {
		case "restaurant", "venue":
			d.Restaurant = value
		case "time", "date", "reservation time":
			t, err := parseTime(value)
			if err != nil {
				return details{}, fmt.Errorf("parse reservation time: %w", err)
			}
			d.Time = t
		case "party", "party size", "guests":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return details{}, fmt.Errorf("invalid party size %q", value)
			}
			d.PartySize = n
		}
	}

	if d.Restaurant == "" {
		d.Restaurant = defaultRestaurant
	}
	if d.Time.IsZero() {
		d.Time = now.Add(defaultLeadTime).Truncate(time.Second)
	}
	if d.PartySize == 0 {
		d.PartySize = defaultPartySize
	}
	return d, nil
}

// parseTime accepts RFC 3339 or unix seconds.
func parseTime(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// EmailHash identifies a submission by its sender, subject and body.
func EmailHash(s Submission) string {
	return crypto.Keccak256Hash([]byte(s.From + s.Subject + s.Body)).Hex()
}

func newReservationID() string {
	return "RES-" + strings.ToUpper(uuid.NewString()[:8])
}

// buildPayload turns a parsed email into the statement the relayer attests.
func buildPayload(cmd Command, platform proof.Platform, d details, emailHash string, now time.Time) proof.Payload {
	id := newReservationID()
	if len(cmd.Params) > 0 {
		id = cmd.Params[0]
	}

	p := proof.Payload{
		Platform:        string(platform),
		RestaurantName:  d.Restaurant,
		ReservationTime: d.Time.Unix(),
		PartySize:       d.PartySize,
		EventTime:       now.Unix(),
		EmailHash:       emailHash,
		IssuedAt:        now.Unix(),
	}

	switch cmd.Type {
	case CommandList:
		p.Type, p.ReservationID = proof.KindReservation, id
	case CommandCancel:
		p.Type, p.OriginalReservationID = proof.KindCancellation, id
	case CommandClaim:
		p.Type, p.NewReservationID = proof.KindBooking, id
	}
	return p
}
