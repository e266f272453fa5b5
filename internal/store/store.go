// Package store loads and saves the YAML configuration files that drive
// ingestion: extraction rules, the card-to-account mapping and categories.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"fjacquet/networth-sync/internal/config"
	"fjacquet/networth-sync/internal/models"
)

// Use the centralized logger from config package
var log = config.Logger

// SetLogger allows setting a custom logger
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		log = logger
	}
}

// RulesConfig is the layout of the rules file.
//
//	cards:
//	  "1234": acc-visa
//	rules:
//	  - name: visa-purchase
//	    card: "1234"
//	    query: "from:alerts@bank.example is:unread"
//	    amount_pattern: 'CHF\s*([\d.,]+)'
//	    merchant_pattern: 'chez\s+(.+)'
//	    label: Card payment
type RulesConfig struct {
	Cards map[string]string       `yaml:"cards,omitempty"`
	Rules []models.ExtractionRule `yaml:"rules"`
}

// ConfigStore manages loading and saving of the YAML configuration files
type ConfigStore struct {
	RulesFile      string
	CategoriesFile string
}

// NewConfigStore creates a new store for the rules and categories files
func NewConfigStore(rulesFile, categoriesFile string) *ConfigStore {
	return &ConfigStore{
		RulesFile:      rulesFile,
		CategoriesFile: categoriesFile,
	}
}

// FindConfigFile looks for a configuration file in standard locations
func (s *ConfigStore) FindConfigFile(filename string) (string, error) {
	if filepath.IsAbs(filename) {
		if _, err := os.Stat(filename); err == nil {
			return filename, nil
		}
		return "", os.ErrNotExist
	}

	locations := []string{
		filename,
		filepath.Join("config", filename),
		filepath.Join(".networth", filename),
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location, nil
		}
	}

	// Last resort: ~/.networth/
	homeDir, err := os.UserHomeDir()
	if err == nil {
		configPath := filepath.Join(homeDir, ".networth", filename)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
	}

	return "", os.ErrNotExist
}

// LoadRules reads the extraction rules and the card mapping. A missing
// rules file is an error: a pass cannot run without rules.
func (s *ConfigStore) LoadRules() (*RulesConfig, error) {
	filename := s.RulesFile
	if filename == "" {
		filename = "rules.yaml"
	}

	filePath, err := s.FindConfigFile(filename)
	if err != nil {
		return nil, fmt.Errorf("rules file %s not found: %w", filename, err)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading rules file: %w", err)
	}

	var cfg RulesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing rules file %s: %w", filePath, err)
	}
	if len(cfg.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s defines no rules", filePath)
	}
	if cfg.Cards == nil {
		cfg.Cards = map[string]string{}
	}

	log.Debugf("Loaded %d rules and %d card mappings from %s", len(cfg.Rules), len(cfg.Cards), filePath)
	return &cfg, nil
}

// SaveCardMapping binds card to accountID in the rules file, keeping the
// rules untouched.
func (s *ConfigStore) SaveCardMapping(card, accountID string) error {
	card = strings.TrimSpace(card)
	if card == "" || accountID == "" {
		return errors.New("card and account id are required")
	}

	cfg, err := s.LoadRules()
	if err != nil {
		return err
	}
	cfg.Cards[card] = accountID

	filePath, err := s.FindConfigFile(s.rulesFilename())
	if err != nil {
		return fmt.Errorf("error resolving rules file: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling rules: %w", err)
	}
	if err := os.WriteFile(filePath, data, models.PermissionConfigFile); err != nil {
		return fmt.Errorf("error writing rules file: %w", err)
	}

	log.Debugf("Saved card mapping %s -> %s to %s", card, accountID, filePath)
	return nil
}

func (s *ConfigStore) rulesFilename() string {
	if s.RulesFile == "" {
		return "rules.yaml"
	}
	return s.RulesFile
}

// LoadCategories loads categories from the YAML file. A missing file yields
// no categories.
func (s *ConfigStore) LoadCategories() ([]models.CategoryConfig, error) {
	filename := s.CategoriesFile
	if filename == "" {
		filename = "categories.yaml"
	}

	filePath, err := s.FindConfigFile(filename)
	if err != nil {
		log.Warnf("Categories file not found: %s", filename)
		return []models.CategoryConfig{}, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading categories file: %w", err)
	}

	// "categories: [...]"
	var categoriesConfig models.CategoriesConfig
	err = yaml.Unmarshal(data, &categoriesConfig)
	if err == nil && len(categoriesConfig.Categories) > 0 {
		log.Debugf("Loaded %d categories from %s", len(categoriesConfig.Categories), filePath)
		return categoriesConfig.Categories, nil
	}

	// bare list without the top-level key
	var categories []models.CategoryConfig
	err = yaml.Unmarshal(data, &categories)
	if err == nil && len(categories) > 0 {
		log.Debugf("Loaded %d categories from %s using direct array", len(categories), filePath)
		return categories, nil
	}

	return s.parseCategoryMap(data)
}

// parseCategoryMap reads the legacy "name: {keywords: [...]}" layout.
func (s *ConfigStore) parseCategoryMap(data []byte) ([]models.CategoryConfig, error) {
	var categoriesMap map[string]interface{}
	if err := yaml.Unmarshal(data, &categoriesMap); err != nil {
		return nil, fmt.Errorf("error parsing categories file: %w", err)
	}

	names := make([]string, 0, len(categoriesMap))
	for name := range categoriesMap {
		names = append(names, name)
	}
	sort.Strings(names)

	categories := make([]models.CategoryConfig, 0, len(names))
	for _, name := range names {
		category := models.CategoryConfig{Name: name}
		if v, ok := categoriesMap[name].(map[string]interface{}); ok {
			if keywordsList, ok := v["keywords"].([]interface{}); ok {
				for _, k := range keywordsList {
					if keyword, ok := k.(string); ok {
						category.Keywords = append(category.Keywords, keyword)
					}
				}
			}
		}
		categories = append(categories, category)
	}

	log.Debugf("Parsed %d categories from map layout", len(categories))
	return categories, nil
}
