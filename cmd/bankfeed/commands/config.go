package commands

import (
	"fmt"
	"log/slog"

	"bankfeed/lib/banks"
	"bankfeed/lib/banks/registry"
	"bankfeed/lib/browser"
	"bankfeed/lib/configutil"
	"bankfeed/services/importer"
)

type Config struct {
	// path to the sqlite database transactions land in
	Db string `json:"db"`
	// path to the firefox profile holding the logged-in sessions
	FirefoxProfile string `json:"firefox_profile"`
	// how far back an import reaches, in days
	Days     int             `json:"days"`
	Accounts []banks.Account `json:"accounts"`
	// explicit cookies per institution, used instead of the firefox
	// profile when set
	Cookies map[banks.Institution]map[string]string `json:"cookies"`
	// concurrent fetches per institution, defaults to 1
	Concurrency map[banks.Institution]int `json:"concurrency"`
}

func readConfig() (Config, error) {
	cfg, err := configutil.ReadConfig[Config]("bankfeed.json5")
	if err != nil {
		return Config{}, err
	}
	if cfg.Db == "" {
		cfg.Db = "bankfeed.db"
	}
	if cfg.Days == 0 {
		cfg.Days = 60
	}
	if len(cfg.Accounts) == 0 {
		return Config{}, fmt.Errorf("no accounts configured")
	}
	for _, acct := range cfg.Accounts {
		if err := banks.ValidateAccount(acct); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// buildTargets reads each required institution's session out of the
// firefox profile once and pairs it with that institution's accounts.
func buildTargets(cfg Config) ([]importer.Target, error) {
	profile := browser.FirefoxProfile{Path: cfg.FirefoxProfile}

	sessions := make(map[banks.Institution]browser.Session)
	for _, acct := range cfg.Accounts {
		if _, ok := sessions[acct.Institution]; ok {
			continue
		}
		cookies := cfg.Cookies[acct.Institution]
		if cookies == nil {
			var err error
			cookies, err = profile.Cookies(registry.CookieHosts(acct.Institution))
			if err != nil {
				return nil, fmt.Errorf("reading %s cookies: %w", acct.Institution, err)
			}
		}
		slog.Debug("loaded session cookies",
			"institution", acct.Institution,
			"count", len(cookies),
		)
		sessions[acct.Institution] = browser.NewSession(registry.Referer(acct.Institution), cookies, nil)
	}

	targets := make([]importer.Target, 0, len(cfg.Accounts))
	for _, acct := range cfg.Accounts {
		targets = append(targets, importer.Target{
			Account: acct,
			Session: sessions[acct.Institution],
		})
	}
	return targets, nil
}
