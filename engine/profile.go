package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Profile is what the prompts know about a user.
type Profile struct {
	Name               string `json:"name"`
	Gender             string `json:"gender"`
	BirthDate          string `json:"birth_date"`
	Married            string `json:"married"`
	FamilyRelationship string `json:"family_relationship"`
}

// ProfileSource looks up user profiles.
type ProfileSource interface {
	Profile(ctx context.Context, userID string) (Profile, error)
}

// StaticProfiles serves profiles from memory.
type StaticProfiles map[string]Profile

// Profile returns the stored profile or an empty one.
func (s StaticProfiles) Profile(_ context.Context, userID string) (Profile, error) {
	return s[userID], nil
}

// HTTPProfiles fetches profiles from a user service that answers
// GET <endpoint>?user_id=<id> with a JSON Profile.
type HTTPProfiles struct {
	endpoint string
	client   *http.Client
}

// NewHTTPProfiles creates an HTTP profile source.
func NewHTTPProfiles(endpoint string, timeout time.Duration) *HTTPProfiles {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProfiles{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Profile fetches the profile of userID.
func (h *HTTPProfiles) Profile(ctx context.Context, userID string) (Profile, error) {
	u, err := url.Parse(h.endpoint)
	if err != nil {
		return Profile{}, fmt.Errorf("profile endpoint: %w", err)
	}
	q := u.Query()
	q.Set("user_id", userID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Profile{}, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("fetch profile: status %d", resp.StatusCode)
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}

const unknown = "알 수 없음"

// FormatProfile renders p for prompts. Missing fields read as unknown and
// the age is derived from the birth year.
func FormatProfile(p Profile, now time.Time) string {
	or := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return unknown
		}
		return s
	}
	age := unknown
	if year, err := strconv.Atoi(strings.SplitN(p.BirthDate, "-", 2)[0]); err == nil && year > 0 {
		age = strconv.Itoa(now.Year() - year)
	}
	return fmt.Sprintf("이름: %s, 성별: %s, 나이: %s, 결혼 여부: %s, 가족 관계: %s",
		or(p.Name), or(p.Gender), age, or(p.Married), or(p.FamilyRelationship))
}

// profileInfo looks up and formats a profile. Lookup failures are logged
// and yield an all-unknown profile; a missing profile never blocks a reply.
func profileInfo(ctx context.Context, src ProfileSource, userID string, now time.Time) string {
	if src == nil {
		return FormatProfile(Profile{}, now)
	}
	p, err := src.Profile(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("[PROFILE] profile lookup failed")
	}
	return FormatProfile(p, now)
}
