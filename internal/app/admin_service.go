package app

import (
	"context"
	"errors"
	"fmt"

	"timetable_sync_bot/internal/domain/schedule"
	"timetable_sync_bot/internal/domain/teacher"
	idb "timetable_sync_bot/internal/infra/database"
)

var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")

// Syncer starts a sync run; SyncService implements it.
type Syncer interface {
	Run(ctx context.Context, trigger schedule.Trigger) SyncResult
	Running() bool
}

// StatusReport is what /status shows. Pointer and LastRun are nil when
// nothing has been promoted or run yet.
type StatusReport struct {
	Pointer        *schedule.ActiveSnapshotPointer
	LastRun        *schedule.SyncRun
	ActiveGroups   int
	ActiveTeachers int
	SyncRunning    bool
}

type AdminService struct {
	snapshots       schedule.Repository
	teachers        teacher.Repository
	syncer          Syncer
	adminTelegramID int64
}

func NewAdminService(snapshots schedule.Repository, teachers teacher.Repository, syncer Syncer, adminID int64) *AdminService {
	return &AdminService{
		snapshots:       snapshots,
		teachers:        teachers,
		syncer:          syncer,
		adminTelegramID: adminID,
	}
}

// TriggerSync runs a manual sync on behalf of an admin and waits for it.
func (s *AdminService) TriggerSync(ctx context.Context, performingAdminID int64) (SyncResult, error) {
	if performingAdminID != s.adminTelegramID {
		return SyncResult{}, ErrAdminNotAuthorized
	}
	return s.syncer.Run(ctx, schedule.TriggerManual), nil
}

// Status reports the active snapshot and the latest run.
func (s *AdminService) Status(ctx context.Context, performingAdminID int64) (*StatusReport, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, ErrAdminNotAuthorized
	}

	report := &StatusReport{SyncRunning: s.syncer.Running()}

	pointer, err := s.snapshots.ActivePointer(ctx)
	if err != nil && !errors.Is(err, idb.ErrPointerNotFound) {
		return nil, fmt.Errorf("failed to read active snapshot: %w", err)
	}
	if pointer != nil && pointer.ActiveRunID != "" {
		report.Pointer = pointer

		groups, err := s.snapshots.ListGroups(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list active groups: %w", err)
		}
		teachers, err := s.teachers.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list active teachers: %w", err)
		}
		report.ActiveGroups = len(groups)
		report.ActiveTeachers = len(teachers)
	}

	run, err := s.snapshots.LastRun(ctx)
	if err != nil && !errors.Is(err, idb.ErrRunNotFound) {
		return nil, fmt.Errorf("failed to read last sync run: %w", err)
	}
	report.LastRun = run

	return report, nil
}
