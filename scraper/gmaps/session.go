package gmaps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"gmaps-scraper/config"
	"gmaps-scraper/models"
	"gmaps-scraper/utils"
)

const searchBaseURL = "https://www.google.com/maps/search/"

// ErrChallenge is returned when the provider serves its anti-automation
// interstitial. The session stops early; everything already yielded is kept.
var ErrChallenge = errors.New("challenge page detected")

var coordsRegexp = regexp.MustCompile(`@(-?[\d.]+),(-?[\d.]+)`)

// Session scrapes Google Maps one postcode at a time. It satisfies
// scraper.Producer; each Scrape call owns exactly one tab context and
// releases it on every exit path.
type Session struct {
	cfg    *config.Config
	logger *utils.Logger
	b      *Browser
	pacer  *utils.Pacer
	retry  *utils.RetryConfig
}

// NewSession creates a Session backed by the shared browser.
func NewSession(b *Browser, cfg *config.Config, logger *utils.Logger) *Session {
	return &Session{
		cfg:    cfg,
		logger: logger,
		b:      b,
		pacer:  utils.NewPacer(cfg.DelayMin, cfg.DelayMax),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
	}
}

type placeDetail struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
	Website  string `json:"website"`
	Rating   string `json:"rating"`
	Reviews  string `json:"reviews"`
	Category string `json:"category"`
	Hours    string `json:"hours"`
}

// Scrape runs the search "query near postcode", scrolls the result feed to
// exhaustion (or the listing cap), opens every place pane and yields one
// RawListing per extracted place, in discovery order.
func (s *Session) Scrape(ctx context.Context, query, postcode string, yield func(models.RawListing)) (int, error) {
	tabCtx, cancelTab := chromedp.NewContext(s.b.rootCtx)
	defer cancelTab()

	tabCtx, cancelBudget := context.WithTimeout(tabCtx, s.cfg.SessionTimeout)
	defer cancelBudget()

	// Run-level cancellation tears the tab down mid-action.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	searchURL := buildSearchURL(query, postcode)
	s.logger.Info("[gmaps] %s: %s", postcode, searchURL)

	err := s.retry.Do(tabCtx, fmt.Sprintf("search-%s", postcode), func() error {
		return chromedp.Run(tabCtx,
			chromedp.Navigate(searchURL),
			chromedp.Sleep(s.pacer.Delay()),
			chromedp.Evaluate(consentScript, nil),
			chromedp.Sleep(s.pacer.Delay()),
		)
	})
	if err != nil {
		return 0, s.sessionErr(ctx, err)
	}

	if blocked, _ := s.isChallenge(tabCtx); blocked {
		return 0, ErrChallenge
	}

	links, err := s.collectLinks(tabCtx)
	if err != nil {
		return 0, s.sessionErr(ctx, err)
	}

	if len(links) == 0 {
		// A very specific query can resolve straight to one place pane.
		return s.scrapeSinglePlace(tabCtx, postcode, yield)
	}

	s.logger.Debug("[gmaps] %s: %d place links", postcode, len(links))

	skipped := 0
	yielded := 0
	visited := utils.NewStringSet()

	for _, link := range links {
		if yielded >= s.cfg.ListingCap {
			s.logger.Warn("[gmaps] %s: listing cap (%d) reached", postcode, s.cfg.ListingCap)
			break
		}
		if ctx.Err() != nil {
			return skipped, s.sessionErr(ctx, ctx.Err())
		}
		if !visited.Add(link) {
			continue
		}

		raw, err := s.scrapePlace(tabCtx, link)
		if err != nil {
			if errors.Is(err, ErrChallenge) {
				return skipped, ErrChallenge
			}
			if tabCtx.Err() != nil {
				return skipped, s.sessionErr(ctx, tabCtx.Err())
			}
			// Extraction failures on an individual listing are non-fatal.
			skipped++
			s.logger.Warn("[gmaps] %s: skipping place: %v", postcode, err)
			continue
		}

		raw.Postcode = postcode
		yield(raw)
		yielded++
	}

	return skipped, nil
}

// collectLinks scrolls the virtualized result feed until no new results
// appear for three rounds, the end-of-list marker shows, or the scroll cap
// is hit, then returns the distinct place links.
func (s *Session) collectLinks(tabCtx context.Context) ([]string, error) {
	// The feed may legitimately be absent (zero results, single place).
	waitCtx, cancelWait := context.WithTimeout(tabCtx, 8*time.Second)
	err := chromedp.Run(waitCtx, chromedp.WaitVisible(`div[role="feed"]`, chromedp.ByQuery))
	cancelWait()
	if err != nil {
		return nil, nil
	}

	prevCount := 0
	staleRounds := 0

	for i := 0; i < s.cfg.MaxScrolls; i++ {
		var atEnd bool
		var count int
		err := chromedp.Run(tabCtx,
			chromedp.Evaluate(feedScrollScript, nil),
			chromedp.Sleep(s.pacer.Delay()),
			chromedp.Evaluate(endOfListScript, &atEnd),
			chromedp.Evaluate(resultCountScript, &count),
		)
		if err != nil {
			return nil, err
		}
		if atEnd {
			break
		}

		if count == prevCount {
			staleRounds++
			if staleRounds >= 3 {
				break
			}
		} else {
			staleRounds = 0
		}
		prevCount = count
	}

	var rawJSON string
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(listingLinksScript, &rawJSON)); err != nil {
		return nil, err
	}

	var links []string
	if err := json.Unmarshal([]byte(rawJSON), &links); err != nil {
		return nil, fmt.Errorf("gmaps: decode place links: %w", err)
	}
	return links, nil
}

// scrapePlace opens one place pane and extracts the full attribute set.
func (s *Session) scrapePlace(tabCtx context.Context, link string) (models.RawListing, error) {
	var rawJSON string
	var pageURL string

	err := chromedp.Run(tabCtx,
		chromedp.Navigate(link),
		chromedp.Sleep(s.pacer.Delay()),
		chromedp.Evaluate(placeDetailScript, &rawJSON),
		chromedp.Location(&pageURL),
	)
	if err != nil {
		return models.RawListing{}, err
	}

	if blocked, _ := s.isChallenge(tabCtx); blocked {
		return models.RawListing{}, ErrChallenge
	}

	var detail placeDetail
	if err := json.Unmarshal([]byte(rawJSON), &detail); err != nil {
		return models.RawListing{}, fmt.Errorf("gmaps: decode place detail: %w", err)
	}
	if detail.Name == "" {
		return models.RawListing{}, fmt.Errorf("gmaps: place pane had no name")
	}

	raw := models.RawListing{
		Name:         detail.Name,
		Address:      detail.Address,
		Phone:        detail.Phone,
		Category:     detail.Category,
		Rating:       detail.Rating,
		Reviews:      detail.Reviews,
		Website:      detail.Website,
		OpeningHours: detail.Hours,
		MapsURL:      link,
		ScrapedAt:    time.Now(),
	}

	if m := coordsRegexp.FindStringSubmatch(pageURL); m != nil {
		raw.Latitude = m[1]
		raw.Longitude = m[2]
	}

	return raw, nil
}

// scrapeSinglePlace handles the no-feed case where the search landed
// directly on a place pane.
func (s *Session) scrapeSinglePlace(tabCtx context.Context, postcode string, yield func(models.RawListing)) (int, error) {
	var pageURL string
	if err := chromedp.Run(tabCtx, chromedp.Location(&pageURL)); err != nil {
		return 0, err
	}
	if !strings.Contains(pageURL, "/maps/place/") {
		s.logger.Debug("[gmaps] %s: no results", postcode)
		return 0, nil
	}

	raw, err := s.scrapePlace(tabCtx, pageURL)
	if err != nil {
		if errors.Is(err, ErrChallenge) {
			return 0, ErrChallenge
		}
		// The pane was there but unreadable: that is a skipped listing,
		// not an empty result set.
		s.logger.Warn("[gmaps] %s: skipping single place: %v", postcode, err)
		return 1, nil
	}

	raw.Postcode = postcode
	yield(raw)
	return 0, nil
}

func (s *Session) isChallenge(tabCtx context.Context) (bool, error) {
	var blocked bool
	err := chromedp.Run(tabCtx, chromedp.Evaluate(challengeScript, &blocked))
	return blocked, err
}

// sessionErr distinguishes run cancellation from a genuine session failure
// in the reported reason.
func (s *Session) sessionErr(runCtx context.Context, err error) error {
	if runCtx.Err() != nil {
		return fmt.Errorf("run cancelled: %w", runCtx.Err())
	}
	return err
}

func buildSearchURL(query, postcode string) string {
	return searchBaseURL + url.PathEscape(query+" near "+postcode) + "?hl=en"
}
