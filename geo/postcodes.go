// Package geo resolves a location name to its UK postcode areas (outcodes)
// through the postcodes.io API.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gmaps-scraper/utils"
)

// ErrNoSuchLocation is returned when the lookup finds no postcode areas.
var ErrNoSuchLocation = errors.New("no postcode areas found for location")

// Outcode is one postcode area with its admin district and centre point.
type Outcode struct {
	Outcode       string
	AdminDistrict string
	Latitude      float64
	Longitude     float64
}

// Client queries postcodes.io. The engine never retries lookups; failures
// surface directly to the caller.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *utils.Logger
}

// NewClient creates a Client against the given API base URL.
func NewClient(baseURL string, logger *utils.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

type placesResponse struct {
	Result []struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"result"`
}

type outcodeRecord struct {
	Outcode       string   `json:"outcode"`
	AdminDistrict []string `json:"admin_district"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
}

type outcodesResponse struct {
	Result []outcodeRecord `json:"result"`
}

type outcodeResponse struct {
	Result outcodeRecord `json:"result"`
}

// Resolve maps a location name to an ordered, distinct set of outcodes: it
// searches for matching places, collects the outcodes within 25 km of each,
// and also tries the input directly as an outcode when it looks like one.
func (c *Client) Resolve(ctx context.Context, location string) ([]Outcode, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, errors.New("location is required")
	}

	seen := utils.NewStringSet()
	var results []Outcode

	places, err := c.searchPlaces(ctx, location)
	if err != nil {
		return nil, err
	}

	for _, place := range places {
		outcodes, err := c.outcodesNear(ctx, place.Latitude, place.Longitude)
		if err != nil {
			c.logger.Warn("[geo] outcode lookup near %.4f,%.4f failed: %v",
				place.Latitude, place.Longitude, err)
			continue
		}
		for _, oc := range outcodes {
			if oc.Outcode != "" && seen.Add(oc.Outcode) {
				results = append(results, toOutcode(oc))
			}
		}
	}

	// Short alphanumeric input may itself be an outcode ("L1", "SW1A").
	upper := strings.ToUpper(location)
	if len(upper) <= 4 && upper != "" && unicode.IsLetter(rune(upper[0])) {
		if oc, err := c.lookupOutcode(ctx, upper); err == nil && oc.Outcode != "" {
			if seen.Add(oc.Outcode) {
				results = append(results, toOutcode(oc))
			}
		}
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchLocation, location)
	}

	sortOutcodes(results)
	return results, nil
}

func (c *Client) searchPlaces(ctx context.Context, location string) ([]struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}, error) {
	endpoint := fmt.Sprintf("%s/places?q=%s&limit=5", c.baseURL, url.QueryEscape(location))

	var resp placesResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("geo: place search: %w", err)
	}
	return resp.Result, nil
}

func (c *Client) outcodesNear(ctx context.Context, lat, lng float64) ([]outcodeRecord, error) {
	endpoint := fmt.Sprintf("%s/outcodes?lon=%f&lat=%f&limit=100&radius=25000", c.baseURL, lng, lat)

	var resp outcodesResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (c *Client) lookupOutcode(ctx context.Context, outcode string) (outcodeRecord, error) {
	endpoint := fmt.Sprintf("%s/outcodes/%s", c.baseURL, url.PathEscape(outcode))

	var resp outcodeResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return outcodeRecord{}, err
	}
	return resp.Result, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("not found")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func toOutcode(rec outcodeRecord) Outcode {
	return Outcode{
		Outcode:       rec.Outcode,
		AdminDistrict: strings.Join(rec.AdminDistrict, ", "),
		Latitude:      rec.Latitude,
		Longitude:     rec.Longitude,
	}
}

// sortOutcodes orders outcodes by their alpha prefix then numeric part, so
// "L2" sorts before "L10".
func sortOutcodes(outcodes []Outcode) {
	sort.Slice(outcodes, func(i, j int) bool {
		ai, ni := splitOutcode(outcodes[i].Outcode)
		aj, nj := splitOutcode(outcodes[j].Outcode)
		if ai != aj {
			return ai < aj
		}
		return ni < nj
	})
}

func splitOutcode(oc string) (string, int) {
	var alpha, num strings.Builder
	for _, r := range oc {
		if unicode.IsDigit(r) {
			num.WriteRune(r)
		} else {
			alpha.WriteRune(r)
		}
	}
	n, _ := strconv.Atoi(num.String())
	return alpha.String(), n
}
