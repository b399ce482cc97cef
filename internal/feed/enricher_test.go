package feed_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/feedgen/internal/domain"
	"github.com/dukerupert/feedgen/internal/feed"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://shop.test"

func newEnricher(store *domain.MockCatalogStore, prices *domain.MockPriceService) *feed.Enricher {
	return feed.NewEnricher(store, prices, "s1", testBaseURL, nil)
}

func element(id int64) domain.CatalogElement {
	return domain.CatalogElement{
		ID:            id,
		CatalogID:     1,
		SectionID:     10,
		Name:          "Product",
		DetailPageURL: "/catalog/product/",
		Active:        true,
	}
}

func TestEnrich_ImageFallbackTiers(t *testing.T) {
	store := domain.NewMockCatalogStore()
	store.AddFile(1, "/upload/detail.jpg")
	store.AddFile(2, "/upload/preview.jpg")
	store.AddFile(3, "/upload/more.jpg")
	store.AddFile(4, "/upload/parent.jpg")
	store.AddFile(5, "/upload/parent-detail.jpg")
	store.AddFile(6, "/upload/parent-preview.jpg")

	detail := element(100)
	detail.DetailPicture = 1
	detail.PreviewPicture = 2

	preview := element(101)
	preview.PreviewPicture = 2
	preview.Properties = map[string][]string{domain.PropertyMorePhoto: {"3"}}

	more := element(102)
	more.Properties = map[string][]string{domain.PropertyMorePhoto: {"999", "3"}}

	fromParent := element(103)
	fromParent.ParentLink = 500

	none := element(104)

	noneWithBareParent := element(105)
	noneWithBareParent.ParentLink = 501

	fromParentDetail := element(106)
	fromParentDetail.ParentLink = 502

	fromParentPreview := element(107)
	fromParentPreview.ParentLink = 503

	for _, e := range []domain.CatalogElement{detail, preview, more, fromParent, none, noneWithBareParent, fromParentDetail, fromParentPreview} {
		store.AddElement(e)
	}

	parent := element(500)
	parent.CatalogID = 2
	parent.Properties = map[string][]string{domain.PropertyMorePhoto: {"4"}}
	store.AddParent(parent)
	bare := element(501)
	bare.CatalogID = 2
	store.AddParent(bare)
	parentWithDetail := element(502)
	parentWithDetail.CatalogID = 2
	parentWithDetail.DetailPicture = 5
	parentWithDetail.PreviewPicture = 6
	parentWithDetail.Properties = map[string][]string{domain.PropertyMorePhoto: {"4"}}
	store.AddParent(parentWithDetail)
	parentWithPreview := element(503)
	parentWithPreview.CatalogID = 2
	parentWithPreview.PreviewPicture = 6
	parentWithPreview.Properties = map[string][]string{domain.PropertyMorePhoto: {"4"}}
	store.AddParent(parentWithPreview)

	records, stats, err := newEnricher(store, domain.NewMockPriceService()).Enrich(context.Background(), feed.Query{CatalogID: 1, PriceField: "BASE"})
	require.NoError(t, err)
	require.Len(t, records, 8)

	assert.Equal(t, testBaseURL+"/upload/detail.jpg", records[0].Image, "detail picture wins")
	assert.Equal(t, testBaseURL+"/upload/preview.jpg", records[1].Image, "preview before more photo")
	assert.Equal(t, testBaseURL+"/upload/more.jpg", records[2].Image, "first resolvable more photo")
	assert.Equal(t, []string{testBaseURL + "/upload/more.jpg"}, records[2].MorePhoto)
	assert.Equal(t, testBaseURL+"/upload/parent.jpg", records[3].Image, "parent chain last")
	assert.Empty(t, records[4].Image)
	assert.False(t, records[4].HasImage())
	assert.Empty(t, records[5].Image)
	assert.Equal(t, testBaseURL+"/upload/parent-detail.jpg", records[6].Image, "parent detail before parent preview")
	assert.Equal(t, testBaseURL+"/upload/parent-preview.jpg", records[7].Image, "parent preview before parent more photo")
	assert.Equal(t, 2, stats.MissingImages)
}

func TestEnrich_RecordFields(t *testing.T) {
	store := domain.NewMockCatalogStore()
	prices := domain.NewMockPriceService()

	inStock := element(42)
	inStock.Quantity = 3
	inStock.PreviewText = "<p>Warm &amp; <b>soft</b></p>"
	inStock.DetailText = "<p>ignored</p>"
	store.AddElement(inStock)

	outOfStock := element(43)
	outOfStock.DetailText = "<div>Detail only</div>"
	store.AddElement(outOfStock)

	prices.Prices[42] = domain.Price{Amount: decimal.NewFromInt(100), Currency: "RUB"}

	records, stats, err := newEnricher(store, prices).Enrich(context.Background(), feed.Query{CatalogID: 1, PriceField: "BASE"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	r := records[0]
	assert.Equal(t, int64(42), r.ID)
	assert.True(t, r.Available)
	assert.Equal(t, "Warm & soft", r.Text)
	assert.Equal(t, testBaseURL+"/catalog/product/", r.Link)
	assert.True(t, r.HasPrice)
	assert.Equal(t, "100 RUB", r.PriceLabel())
	assert.Equal(t, int64(10), r.SectionID)

	assert.False(t, records[1].Available)
	assert.Equal(t, "Detail only", records[1].Text)
	assert.False(t, records[1].HasPrice)
	assert.Equal(t, "", records[1].PriceLabel())

	assert.Equal(t, 1, stats.MissingPrices)
	assert.Equal(t, []int64{42, 43}, prices.Calls)
}

func TestEnrich_ParentCachedPerRun(t *testing.T) {
	store := domain.NewMockCatalogStore()

	parent := element(500)
	parent.CatalogID = 2
	parent.SectionID = 77
	parent.SectionCode = "hoodies"
	parent.Name = "Hoodie"
	parent.DetailPageURL = "/catalog/hoodie/"
	store.AddParent(parent)

	for _, id := range []int64{1, 2, 3} {
		v := element(id)
		v.ParentLink = 500
		store.AddElement(v)
	}
	orphan := element(4)
	orphan.ParentLink = 404
	store.AddElement(orphan)
	orphan2 := element(5)
	orphan2.ParentLink = 404
	store.AddElement(orphan2)

	enricher := newEnricher(store, domain.NewMockPriceService())
	records, stats, err := enricher.Enrich(context.Background(), feed.Query{CatalogID: 1, PriceField: "BASE"})
	require.NoError(t, err)
	require.Len(t, records, 5)

	assert.Equal(t, 1, store.GetElementCalls[500], "parent loaded once")
	assert.Equal(t, 1, store.GetElementCalls[404], "missing parent not retried")
	assert.Equal(t, 5, stats.Variants)
	assert.Equal(t, 2, stats.ParentLookups)
	assert.Equal(t, 3, stats.ParentCacheHits)
	assert.Equal(t, 2, stats.MissingParents)

	for _, r := range records[:3] {
		require.NotNil(t, r.Parent)
		assert.Equal(t, "Hoodie", r.Parent.Name)
		assert.Equal(t, testBaseURL+"/catalog/hoodie/", r.Parent.Link)
		assert.Equal(t, int64(77), r.SectionID, "variant placed in parent's section")
	}
	assert.Nil(t, records[3].Parent)
	assert.Equal(t, int64(10), records[3].SectionID)

	// a second run starts with an empty cache
	_, _, err = enricher.Enrich(context.Background(), feed.Query{CatalogID: 1, PriceField: "BASE"})
	require.NoError(t, err)
	assert.Equal(t, 2, store.GetElementCalls[500])
}

func TestEnrich_DebugLimitsToOneRow(t *testing.T) {
	store := domain.NewMockCatalogStore()
	store.AddElement(element(1))
	store.AddElement(element(2))

	records, _, err := newEnricher(store, domain.NewMockPriceService()).Enrich(context.Background(), feed.Query{CatalogID: 1, PriceField: "BASE", Debug: true})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	assert.Equal(t, 1, store.LastFilter.Limit)
	assert.True(t, store.LastFilter.ActiveOnly)
	assert.Equal(t, "BASE", store.LastFilter.PriceField)
	assert.Equal(t, int64(1), store.LastFilter.CatalogID)
	assert.Contains(t, store.LastFilter.Select, "BASE")
}

func TestEnrich_ListErrorPropagates(t *testing.T) {
	store := domain.NewMockCatalogStore()
	store.ListErr = errors.New("connection reset")

	_, _, err := newEnricher(store, domain.NewMockPriceService()).Enrich(context.Background(), feed.Query{CatalogID: 1, PriceField: "BASE"})
	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
	assert.ErrorContains(t, err, "connection reset")
}

func TestStripMarkup(t *testing.T) {
	assert.Equal(t, "", feed.StripMarkup(""))
	assert.Equal(t, "Tom & Jerry", feed.StripMarkup("<h1>Tom &amp; Jerry</h1>"))
	assert.Equal(t, "a < b", feed.StripMarkup("a &lt; b"))
}

func TestSanitizeXML(t *testing.T) {
	assert.Equal(t, "a b", feed.SanitizeXML("a\x00\x01b"))
	assert.Equal(t, "tab\tand\nnewline", feed.SanitizeXML("tab\tand\nnewline"))
	assert.Equal(t, "bad b", feed.SanitizeXML("bad\xffb"))
	assert.Equal(t, "кириллица", feed.SanitizeXML("кириллица"))
}
