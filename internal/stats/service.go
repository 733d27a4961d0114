package stats

import (
	"context"
	"time"

	"mailgate/internal/config"
	"mailgate/internal/constants"
	"mailgate/internal/logger"
	pkgerrors "mailgate/pkg/errors"
)

const dayFormat = "2006-01-02"

type Service interface {
	Daily(ctx context.Context, windowDays int) ([]DailyStat, error)
}

type service struct {
	repo     Repository
	location *time.Location
	cfg      config.StatsConfig
	logger   logger.Logger
	now      func() time.Time
}

func NewService(repo Repository, cfg config.StatsConfig, log logger.Logger) (Service, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = constants.DefaultReportingTimezone
	}
	location, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}

	return &service{
		repo:     repo,
		location: location,
		cfg:      cfg,
		logger:   log,
		now:      time.Now,
	}, nil
}

// Daily returns one entry per calendar day over the window ending
// today, oldest first. Days without events carry zero counts so the
// dashboard always renders a full series.
func (s *service) Daily(ctx context.Context, windowDays int) ([]DailyStat, error) {
	if windowDays <= 0 {
		windowDays = s.defaultWindowDays()
	}
	if windowDays > constants.MaxStatsWindowDays {
		windowDays = constants.MaxStatsWindowDays
	}

	today := s.now().In(s.location)
	windowStart := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, s.location).
		AddDate(0, 0, -(windowDays - 1))

	aggregated, err := s.repo.AggregateDaily(ctx, s.location.String(), windowStart.UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	byDay := make(map[string]DailyStat, len(aggregated))
	for _, stat := range aggregated {
		byDay[stat.Day] = stat
	}

	result := make([]DailyStat, 0, windowDays)
	for d := 0; d < windowDays; d++ {
		day := windowStart.AddDate(0, 0, d).Format(dayFormat)
		if stat, ok := byDay[day]; ok {
			result = append(result, stat)
		} else {
			result = append(result, DailyStat{Day: day})
		}
	}

	return result, nil
}

func (s *service) defaultWindowDays() int {
	if s.cfg.DefaultWindowDays > 0 {
		return s.cfg.DefaultWindowDays
	}
	return constants.DefaultStatsWindowDays
}
