package service

import (
	"github.com/dukerupert/feedgen/internal/domain"
)

// Run errors
var (
	ErrRunInProgress = domain.Errorf(domain.ECONFLICT, "", "An export for this profile is already running")
)
