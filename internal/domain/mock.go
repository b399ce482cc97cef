package domain

import (
	"context"
	"strconv"
	"sync"
)

// MockCatalogStore is an in-memory CatalogStore for tests.
// Elements are returned in insertion order.
type MockCatalogStore struct {
	mu       sync.Mutex
	elements []CatalogElement
	byID     map[int64]CatalogElement
	sections map[int64][]Section
	files    map[int64]string

	// ListErr, when set, is returned by ListElements.
	ListErr error

	// GetElementCalls counts GetElement invocations per element ID.
	GetElementCalls map[int64]int

	// LastFilter is the filter passed to the most recent ListElements call.
	LastFilter ElementFilter
}

// NewMockCatalogStore creates an empty mock store.
func NewMockCatalogStore() *MockCatalogStore {
	return &MockCatalogStore{
		byID:            make(map[int64]CatalogElement),
		sections:        make(map[int64][]Section),
		files:           make(map[int64]string),
		GetElementCalls: make(map[int64]int),
	}
}

// AddElement stores an element. Elements in a listed catalog are also
// reachable through GetElement.
func (m *MockCatalogStore) AddElement(e CatalogElement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elements = append(m.elements, e)
	m.byID[e.ID] = e
}

// AddParent stores an element reachable only through GetElement.
func (m *MockCatalogStore) AddParent(e CatalogElement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[e.ID] = e
}

// AddSection stores a section under its catalog.
func (m *MockCatalogStore) AddSection(s Section) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sections[s.CatalogID] = append(m.sections[s.CatalogID], s)
}

// AddFile stores a file path.
func (m *MockCatalogStore) AddFile(id int64, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[id] = path
}

// ListElements filters by catalog and active flag and honors Limit.
// Price filtering is left to the test setup.
func (m *MockCatalogStore) ListElements(ctx context.Context, filter ElementFilter) ([]CatalogElement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastFilter = filter
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	var out []CatalogElement
	for _, e := range m.elements {
		if e.CatalogID != filter.CatalogID {
			continue
		}
		if filter.ActiveOnly && !e.Active {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// GetElement returns the element or ErrElementNotFound.
func (m *MockCatalogStore) GetElement(ctx context.Context, id int64) (*CatalogElement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetElementCalls[id]++
	e, ok := m.byID[id]
	if !ok {
		return nil, ErrElementNotFound
	}
	return &e, nil
}

// ListSections returns sections of a catalog.
func (m *MockCatalogStore) ListSections(ctx context.Context, catalogID int64) ([]Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Section(nil), m.sections[catalogID]...), nil
}

// FilePath returns the stored path or ErrFileNotFound.
func (m *MockCatalogStore) FilePath(ctx context.Context, fileID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.files[fileID]
	if !ok {
		return "", NotFound("catalog.file_path", "file", strconv.FormatInt(fileID, 10))
	}
	return p, nil
}

// MockPriceService returns fixed prices per product.
type MockPriceService struct {
	Prices map[int64]Price

	// Calls records requested product IDs in order.
	Calls []int64
}

// NewMockPriceService creates a price service with no prices.
func NewMockPriceService() *MockPriceService {
	return &MockPriceService{Prices: make(map[int64]Price)}
}

// OptimalPrice returns the configured price or ErrPriceNotFound.
func (m *MockPriceService) OptimalPrice(ctx context.Context, productID int64, quantity int, siteID string) (*Price, error) {
	m.Calls = append(m.Calls, productID)
	p, ok := m.Prices[productID]
	if !ok {
		return nil, ErrPriceNotFound
	}
	return &p, nil
}

// MockSiteService serves a fixed set of sites.
type MockSiteService struct {
	Sites map[string]Site
}

// GetSite returns the configured site or ErrSiteNotFound.
func (m *MockSiteService) GetSite(ctx context.Context, siteID string) (*Site, error) {
	s, ok := m.Sites[siteID]
	if !ok {
		return nil, ErrSiteNotFound
	}
	return &s, nil
}
