package postgres

import (
	"context"
	"errors"

	"github.com/dukerupert/feedgen/internal/domain"
	"github.com/jackc/pgx/v5"
)

// SiteService implements domain.SiteService using PostgreSQL.
type SiteService struct {
	db DBTX
}

var _ domain.SiteService = (*SiteService)(nil)

// NewSiteService creates a new PostgreSQL-backed site service.
func NewSiteService(db DBTX) *SiteService {
	return &SiteService{db: db}
}

// GetSite returns the site or domain.ErrSiteNotFound.
func (s *SiteService) GetSite(ctx context.Context, siteID string) (*domain.Site, error) {
	site := domain.Site{ID: siteID}
	err := s.db.QueryRow(ctx, `SELECT name, server_name FROM sites WHERE id = $1`, siteID).
		Scan(&site.Name, &site.ServerName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSiteNotFound
		}
		return nil, domain.Internal(err, "site.get", "failed to get site")
	}
	return &site, nil
}
