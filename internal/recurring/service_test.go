package recurring_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/frahmantamala/fleet-recurring/internal"
	"github.com/frahmantamala/fleet-recurring/internal/category"
	categoryPostgres "github.com/frahmantamala/fleet-recurring/internal/category/postgres"
	recurringDatamodel "github.com/frahmantamala/fleet-recurring/internal/core/datamodel/recurring"
	"github.com/frahmantamala/fleet-recurring/internal/core/events"
	"github.com/frahmantamala/fleet-recurring/internal/core/scope"
	"github.com/frahmantamala/fleet-recurring/internal/recurring"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

// failingTemplates fails every call with err.
type failingTemplates struct {
	err error
}

func (f failingTemplates) Create(context.Context, *recurringDatamodel.RecurringTemplate) error {
	return f.err
}

func (f failingTemplates) GetByID(context.Context, string) (*recurringDatamodel.RecurringTemplate, error) {
	return nil, f.err
}

func (f failingTemplates) List(context.Context, recurring.TemplateQuery) ([]*recurringDatamodel.RecurringTemplate, error) {
	return nil, f.err
}

func (f failingTemplates) Update(context.Context, *recurringDatamodel.RecurringTemplate) error {
	return f.err
}

func (f failingTemplates) SetActive(context.Context, string, bool) error {
	return f.err
}

func (f failingTemplates) Delete(context.Context, string, bool) error {
	return f.err
}

// recordingNotifier keeps published events and can be told to fail.
type recordingNotifier struct {
	events []events.Event
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, e events.Event) error {
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) types() []string {
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.EventType()
	}
	return out
}

func validationCode(err error) string {
	appErr, ok := internal.IsAppError(err)
	Expect(ok).To(BeTrue(), "expected an AppError, got %v", err)
	details, ok := appErr.Details.(internal.ValidationErrors)
	Expect(ok).To(BeTrue(), "expected validation details, got %#v", appErr.Details)
	Expect(details.Errors).NotTo(BeEmpty())
	return details.Errors[0].Code
}

var _ = Describe("TemplateService", func() {
	var (
		ctx    context.Context
		s      *stack
		tenant scope.Scope
	)

	BeforeEach(func() {
		ctx = context.Background()
		s = newStack(1)
		tenant = scope.ForOwner(ownerA).WithActor("dispatcher-1")
	})

	AfterEach(func() {
		s.close()
	})

	Describe("Create", func() {
		It("stores an active template owned by the tenant", func() {
			t, err := s.service.Create(ctx, tenant, weeklyDTO("2024-01-01"))
			Expect(err).NotTo(HaveOccurred())
			Expect(t.ID).NotTo(BeEmpty())
			Expect(t.OwnerID).To(Equal(ownerA))
			Expect(t.CreatedBy).To(Equal("dispatcher-1"))
			Expect(t.Active).To(BeTrue())
			Expect(t.StartDate).To(Equal(date(2024, time.January, 1)))

			row, err := s.templates.GetByID(ctx, t.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(row.Amount.StringFixed(2)).To(Equal("150.00"))
			Expect(row.IsActive).To(BeTrue())
		})

		It("can store a paused template", func() {
			dto := weeklyDTO("2024-01-01")
			paused := false
			dto.Active = &paused

			t, err := s.service.Create(ctx, tenant, dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(t.Active).To(BeFalse())
		})

		DescribeTable("rejects invalid templates",
			func(mutate func(*recurring.CreateTemplateDTO), code internal.ErrorCode) {
				dto := monthlyDTO("2024-01-01", intPtr(5))
				mutate(&dto)

				_, err := s.service.Create(ctx, tenant, dto)
				Expect(internal.IsValidation(err)).To(BeTrue())
				Expect(validationCode(err)).To(Equal(string(code)))
				Expect(s.countRows(&recurringDatamodel.RecurringTemplate{})).To(BeZero())
			},
			Entry("zero amount", func(d *recurring.CreateTemplateDTO) { d.Amount = decimal.Zero }, internal.ErrCodeInvalidAmount),
			Entry("negative amount", func(d *recurring.CreateTemplateDTO) { d.Amount = decimal.NewFromInt(-5) }, internal.ErrCodeInvalidAmount),
			Entry("unknown frequency", func(d *recurring.CreateTemplateDTO) { d.Frequency = "daily" }, internal.ErrCodeInvalidFrequency),
			Entry("due day above 31", func(d *recurring.CreateTemplateDTO) { d.DueDay = intPtr(32) }, internal.ErrCodeInvalidDueDay),
			Entry("due day below 1", func(d *recurring.CreateTemplateDTO) { d.DueDay = intPtr(0) }, internal.ErrCodeInvalidDueDay),
			Entry("end before start", func(d *recurring.CreateTemplateDTO) { d.EndDate = strPtr("2023-12-31") }, internal.ErrCodeInvalidDateRange),
			Entry("malformed start", func(d *recurring.CreateTemplateDTO) { d.StartDate = "01/02/2024" }, internal.ErrCodeInvalidDate),
			Entry("missing description", func(d *recurring.CreateTemplateDTO) { d.Description = "" }, internal.ErrCodeValidationFailed),
		)

		It("requires a scope", func() {
			_, err := s.service.Create(ctx, scope.Scope{}, weeklyDTO("2024-01-01"))
			Expect(err).To(MatchError(internal.ErrMissingScope))
		})

		It("refuses an owner that differs from the tenant scope", func() {
			dto := weeklyDTO("2024-01-01")
			dto.OwnerID = ownerB

			_, err := s.service.Create(ctx, tenant, dto)
			Expect(validationCode(err)).To(Equal(string(internal.ErrCodeInvalidScope)))
		})

		It("needs an explicit owner in the system scope", func() {
			_, err := s.service.Create(ctx, scope.System(), weeklyDTO("2024-01-01"))
			Expect(validationCode(err)).To(Equal(string(internal.ErrCodeInvalidScope)))

			dto := weeklyDTO("2024-01-01")
			dto.OwnerID = ownerB
			t, err := s.service.Create(ctx, scope.System(), dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(t.OwnerID).To(Equal(ownerB))
		})

		It("reports a repository failure as an internal error", func() {
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			svc := recurring.NewTemplateService(failingTemplates{err: fmt.Errorf("connection reset")}, s.history, nil, nil, logger)

			_, err := svc.Create(ctx, tenant, weeklyDTO("2024-01-01"))
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeInternal))
		})
	})

	Describe("categories", func() {
		var svc *recurring.TemplateService

		BeforeEach(func() {
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			categories := category.NewService(categoryPostgres.NewCategoryRepository(s.db), logger)
			svc = recurring.NewTemplateService(s.templates, s.history, categories, nil, logger)
		})

		It("accepts an active category", func() {
			id := s.addCategory("Fuel", true)
			dto := weeklyDTO("2024-01-01")
			dto.CategoryID = &id

			t, err := svc.Create(ctx, tenant, dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(t.CategoryID).To(HaveValue(Equal(id)))
		})

		It("rejects an inactive or unknown category", func() {
			inactive := s.addCategory("Tolls", false)
			for _, id := range []string{inactive, "missing"} {
				dto := weeklyDTO("2024-01-01")
				dto.CategoryID = strPtr(id)

				_, err := svc.Create(ctx, tenant, dto)
				Expect(validationCode(err)).To(Equal(string(internal.ErrCodeInvalidCategory)))
			}
		})

		It("checks the category on update", func() {
			t, err := svc.Create(ctx, tenant, weeklyDTO("2024-01-01"))
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Update(ctx, tenant, t.ID, recurring.UpdateTemplateDTO{CategoryID: strPtr("missing")})
			Expect(validationCode(err)).To(Equal(string(internal.ErrCodeInvalidCategory)))
		})
	})

	Describe("scope isolation", func() {
		var t *recurring.Template

		BeforeEach(func() {
			t = s.create(ownerA, weeklyDTO("2024-01-01"))
			s.create(ownerB, weeklyDTO("2024-01-01"))
		})

		It("hides other tenants' templates", func() {
			other := scope.ForOwner(ownerB)

			_, err := s.service.Get(ctx, other, t.ID)
			Expect(err).To(MatchError(internal.ErrTemplateNotFound))
			_, err = s.service.Update(ctx, other, t.ID, recurring.UpdateTemplateDTO{Description: strPtr("x")})
			Expect(err).To(MatchError(internal.ErrTemplateNotFound))
			Expect(s.service.Delete(ctx, other, t.ID, true)).To(MatchError(internal.ErrTemplateNotFound))
			_, err = s.service.SetActive(ctx, other, t.ID, false)
			Expect(err).To(MatchError(internal.ErrTemplateNotFound))
			_, err = s.service.History(ctx, other, t.ID, nil)
			Expect(err).To(MatchError(internal.ErrTemplateNotFound))
		})

		It("lists only the tenant's templates", func() {
			list, err := s.service.List(ctx, scope.ForOwner(ownerA), recurring.ListFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(1))
			Expect(list[0].ID).To(Equal(t.ID))
		})

		It("lists everything in the system scope", func() {
			list, err := s.service.List(ctx, scope.System(), recurring.ListFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))

			_, err = s.service.Get(ctx, scope.System(), t.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("filters by state and pages", func() {
			_, err := s.service.SetActive(ctx, scope.ForOwner(ownerA), t.ID, false)
			Expect(err).NotTo(HaveOccurred())

			active := true
			list, err := s.service.List(ctx, scope.System(), recurring.ListFilter{Active: &active})
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(1))
			Expect(list[0].OwnerID).To(Equal(ownerB))

			list, err = s.service.List(ctx, scope.System(), recurring.ListFilter{Limit: 1, Offset: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(1))
		})

		It("requires a scope to read", func() {
			_, err := s.service.Get(ctx, scope.Scope{}, t.ID)
			Expect(err).To(MatchError(internal.ErrMissingScope))
			_, err = s.service.List(ctx, scope.Scope{}, recurring.ListFilter{})
			Expect(err).To(MatchError(internal.ErrMissingScope))
		})
	})

	Describe("Update", func() {
		It("merges a partial update and clears optional fields", func() {
			dto := monthlyDTO("2024-01-01", intPtr(5))
			dto.EndDate = strPtr("2024-12-31")
			t := s.create(ownerA, dto)

			updated, err := s.service.Update(ctx, tenant, t.ID, recurring.UpdateTemplateDTO{
				Description:  strPtr("Garage rent 2024"),
				Counterparty: strPtr(""),
				ClearDueDay:  true,
				ClearEndDate: true,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Description).To(Equal("Garage rent 2024"))
			Expect(updated.Counterparty).To(BeNil())
			Expect(updated.DueDay).To(BeNil())
			Expect(updated.EndDate).To(BeNil())
			Expect(updated.Amount.StringFixed(2)).To(Equal("1200.50"))

			row, err := s.templates.GetByID(ctx, t.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(row.Description).To(Equal("Garage rent 2024"))
			Expect(row.DueDay).To(BeNil())
		})

		It("rejects an update that breaks the rule", func() {
			t := s.create(ownerA, weeklyDTO("2024-03-01"))

			_, err := s.service.Update(ctx, tenant, t.ID, recurring.UpdateTemplateDTO{EndDate: strPtr("2024-02-01")})
			Expect(validationCode(err)).To(Equal(string(internal.ErrCodeInvalidDateRange)))

			row, err := s.templates.GetByID(ctx, t.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(row.EndDate).To(BeNil())
		})
	})

	Describe("Delete", func() {
		var t *recurring.Template

		BeforeEach(func() {
			t = s.create(ownerA, weeklyDTO("2024-01-01"))
		})

		It("deletes a template without history", func() {
			Expect(s.service.Delete(ctx, tenant, t.ID, false)).To(Succeed())
			_, err := s.service.Get(ctx, tenant, t.ID)
			Expect(err).To(MatchError(internal.ErrTemplateNotFound))
		})

		It("refuses to orphan history without cascade", func() {
			_, err := s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.January, 14))
			Expect(err).NotTo(HaveOccurred())

			err = s.service.Delete(ctx, tenant, t.ID, false)
			Expect(internal.IsConflict(err)).To(BeTrue())
			appErr, _ := internal.IsAppError(err)
			Expect(appErr.Code).To(Equal(internal.ErrCodeTemplateHasHistory))
			Expect(appErr.Details).To(Equal(map[string]int64{"records": 2}))
		})

		It("drops the history but keeps entries with cascade", func() {
			_, err := s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.January, 14))
			Expect(err).NotTo(HaveOccurred())

			Expect(s.service.Delete(ctx, tenant, t.ID, true)).To(Succeed())
			Expect(s.allRecords()).To(BeZero())
			Expect(s.allEntries()).To(Equal(int64(2)))
		})

		It("returns not found for an unknown template", func() {
			Expect(s.service.Delete(ctx, tenant, uuid.NewString(), true)).To(MatchError(internal.ErrTemplateNotFound))
		})
	})

	Describe("SetActive and History", func() {
		It("toggles the state and reads back history in date order", func() {
			t := s.create(ownerA, weeklyDTO("2024-01-01"))
			_, err := s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.January, 31))
			Expect(err).NotTo(HaveOccurred())

			paused, err := s.service.SetActive(ctx, tenant, t.ID, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(paused.Active).To(BeFalse())
			resumed, err := s.service.SetActive(ctx, tenant, t.ID, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(resumed.Active).To(BeTrue())

			all, err := s.service.History(ctx, tenant, t.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(5))
			Expect(all[0].OccurrenceDate).To(Equal(date(2024, time.January, 1)))
			Expect(all[4].OccurrenceDate).To(Equal(date(2024, time.January, 29)))

			from := date(2024, time.January, 20)
			recent, err := s.service.History(ctx, tenant, t.ID, &from)
			Expect(err).NotTo(HaveOccurred())
			Expect(recent).To(HaveLen(2))
		})
	})

	Describe("events", func() {
		It("publishes lifecycle events and ignores notifier failures", func() {
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			notifier := &recordingNotifier{err: fmt.Errorf("bus closed")}
			svc := recurring.NewTemplateService(s.templates, s.history, nil, notifier, logger)

			t, err := svc.Create(ctx, tenant, weeklyDTO("2024-01-01"))
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.SetActive(ctx, tenant, t.ID, false)
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.SetActive(ctx, tenant, t.ID, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.Delete(ctx, tenant, t.ID, false)).To(Succeed())

			Expect(notifier.types()).To(Equal([]string{
				events.EventTypeTemplateCreated,
				events.EventTypeTemplateDeactivated,
				events.EventTypeTemplateDeleted,
			}))
			created := notifier.events[0].(*events.RecurringEvent)
			Expect(created.TemplateID).To(Equal(t.ID))
			Expect(created.ActorID).To(Equal("dispatcher-1"))
		})
	})
})
