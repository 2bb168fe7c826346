// Package identity turns scanned or typed input into a person id, or into an
// intent to create the person when the contact is unknown.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/lojf/attendance/internal/models"
	"github.com/lojf/attendance/internal/operator"
	"github.com/lojf/attendance/internal/sentinel"
	"github.com/lojf/attendance/internal/services"
)

// MinIDLength keeps short numbers (phones) from being read as identifiers.
const MinIDLength = 20

// MinPhoneDigits is the fewest digits a typed phone number may have.
const MinPhoneDigits = 7

var (
	reRawID    = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}$`)
	rePrefixed = regexp.MustCompile(`(?i)^(user|uid|id):([A-Za-z0-9_-]{20,})$`)
	idKeys     = []string{"uid", "userId", "id"}
)

type Kind string

const (
	KindResolved                Kind = "resolved"
	KindCreateMember            Kind = "create-member"
	KindCreateMemberFromVisitor Kind = "create-member-from-visitor"
)

// Channel names the input shape a resolution came from.
type Channel string

const (
	ChannelJSON     Channel = "json"
	ChannelURL      Channel = "url"
	ChannelPrefixed Channel = "prefixed"
	ChannelRawID    Channel = "raw-id"
	ChannelPhone    Channel = "phone"
	ChannelEmail    Channel = "email"
)

type Prefill struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Intent asks the operator UI to open person creation with a prefill.
type Intent struct {
	Path      string  `json:"path"`
	Prefill   Prefill `json:"prefill"`
	VisitorID string  `json:"visitorId,omitempty"`
}

type Resolution struct {
	Kind     Kind           `json:"kind"`
	Channel  Channel        `json:"channel"`
	PersonID string         `json:"personId,omitempty"`
	Person   *models.Person `json:"person,omitempty"`
	Intent   *Intent        `json:"intent,omitempty"`
}

func (r *Resolution) Resolved() bool { return r != nil && r.Kind == KindResolved }

type Resolver struct {
	dir    services.Directory
	phones services.Phones
}

func NewResolver(dir services.Directory, phones services.Phones) *Resolver {
	return &Resolver{dir: dir, phones: phones}
}

// Resolve tries, in order: JSON, URL, prefix:VALUE, raw id, then phone/email
// contact lookup. Ids found by the first four are confirmed in the directory.
func (r *Resolver) Resolve(ctx context.Context, op operator.Operator, raw string) (*Resolution, error) {
	in := strings.TrimSpace(raw)
	if in == "" {
		return nil, fmt.Errorf("%w: empty input", sentinel.ErrInvalidPayload)
	}

	if id, ch, ok := ExtractID(in); ok {
		p, err := r.dir.FindPersonByID(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrPersonNotFound) {
				return nil, fmt.Errorf("%s %q: %w", ch, id, sentinel.ErrPersonNotFound)
			}
			return nil, err
		}
		return &Resolution{Kind: KindResolved, Channel: ch, PersonID: p.ID, Person: p}, nil
	}

	switch {
	case services.IsPhone(in, MinPhoneDigits):
		return r.byPhone(ctx, op, in)
	case services.IsEmail(in):
		return r.byEmail(ctx, op, in)
	}
	return nil, fmt.Errorf("%w: %q", sentinel.ErrInvalidPayload, truncate(in, 64))
}

// ExtractID applies the identifier shapes (steps 1–4) without touching the
// directory.
func ExtractID(in string) (string, Channel, bool) {
	in = strings.TrimSpace(in)
	if id, ok := fromJSON(in); ok {
		return id, ChannelJSON, true
	}
	if id, ok := fromURL(in); ok {
		return id, ChannelURL, true
	}
	if m := rePrefixed.FindStringSubmatch(in); m != nil {
		return m[2], ChannelPrefixed, true
	}
	if reRawID.MatchString(in) {
		return in, ChannelRawID, true
	}
	return "", "", false
}

func fromJSON(in string) (string, bool) {
	if !strings.HasPrefix(in, "{") {
		return "", false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(in), &obj); err != nil {
		return "", false
	}
	for _, k := range idKeys {
		if s, ok := obj[k].(string); ok {
			if s = strings.TrimSpace(s); len(s) >= MinIDLength {
				return s, true
			}
		}
	}
	return "", false
}

func fromURL(in string) (string, bool) {
	u, err := url.Parse(in)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	q := u.Query()
	for _, k := range idKeys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v, true
		}
	}
	segs := strings.Split(u.Path, "/")
	for i := len(segs) - 1; i >= 0; i-- {
		if seg := strings.TrimSpace(segs[i]); seg != "" {
			if len(seg) >= MinIDLength {
				return seg, true
			}
			return "", false
		}
	}
	return "", false
}

func (r *Resolver) byPhone(ctx context.Context, op operator.Operator, in string) (*Resolution, error) {
	phone := r.phones.Norm(in)
	p, err := r.dir.FindPersonByPhone(ctx, in)
	if err == nil {
		return &Resolution{Kind: KindResolved, Channel: ChannelPhone, PersonID: p.ID, Person: p}, nil
	}
	if !errors.Is(err, sentinel.ErrPersonNotFound) {
		return nil, err
	}

	v, err := r.dir.FindVisitorByPhone(ctx, op.ChurchID, in)
	if err == nil {
		return visitorIntent(ChannelPhone, v), nil
	}
	if !errors.Is(err, sentinel.ErrPersonNotFound) {
		return nil, err
	}
	return createIntent(ChannelPhone, Prefill{Phone: phone}), nil
}

func (r *Resolver) byEmail(ctx context.Context, op operator.Operator, in string) (*Resolution, error) {
	email, ok := services.NormEmail(in)
	if !ok {
		return nil, fmt.Errorf("%w: malformed email", sentinel.ErrInvalidPayload)
	}
	p, err := r.dir.FindPersonByEmail(ctx, email)
	if err == nil {
		return &Resolution{Kind: KindResolved, Channel: ChannelEmail, PersonID: p.ID, Person: p}, nil
	}
	if !errors.Is(err, sentinel.ErrPersonNotFound) {
		return nil, err
	}

	v, err := r.dir.FindVisitorByEmail(ctx, op.ChurchID, email)
	if err == nil {
		return visitorIntent(ChannelEmail, v), nil
	}
	if !errors.Is(err, sentinel.ErrPersonNotFound) {
		return nil, err
	}
	return createIntent(ChannelEmail, Prefill{Email: email}), nil
}

func visitorIntent(ch Channel, v *models.Visitor) *Resolution {
	pf := Prefill{FirstName: v.FirstName, LastName: v.LastName, Phone: v.Phone, Email: v.Email}
	q := prefillQuery(pf)
	q.Set("visitor_id", v.ID)
	return &Resolution{
		Kind:    KindCreateMemberFromVisitor,
		Channel: ch,
		Intent:  &Intent{Path: "/members/new?" + q.Encode(), Prefill: pf, VisitorID: v.ID},
	}
}

func createIntent(ch Channel, pf Prefill) *Resolution {
	return &Resolution{
		Kind:    KindCreateMember,
		Channel: ch,
		Intent:  &Intent{Path: "/members/new?" + prefillQuery(pf).Encode(), Prefill: pf},
	}
}

func prefillQuery(pf Prefill) url.Values {
	q := url.Values{}
	for k, v := range map[string]string{
		"first_name": pf.FirstName,
		"last_name":  pf.LastName,
		"phone":      pf.Phone,
		"email":      pf.Email,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	return q
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
