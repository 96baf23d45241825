package recurring_test

import (
	"context"
	"sync"
	"time"

	"github.com/frahmantamala/fleet-recurring/internal"
	recurringDatamodel "github.com/frahmantamala/fleet-recurring/internal/core/datamodel/recurring"
	"github.com/frahmantamala/fleet-recurring/internal/core/scope"
	"github.com/frahmantamala/fleet-recurring/internal/recurring"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("Engine", func() {
	var (
		ctx context.Context
		s   *stack
	)

	BeforeEach(func() {
		ctx = context.Background()
		s = newStack(4)
	})

	AfterEach(func() {
		s.close()
	})

	Describe("GenerateForTemplate", func() {
		It("creates one entry per weekly occurrence in January", func() {
			t := s.create(ownerA, weeklyDTO("2024-01-01"))

			created, err := s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.January, 31))
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(Equal(5))
			Expect(s.entryDates(t.ID)).To(Equal([]string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22", "2024-01-29"}))
		})

		It("is idempotent for the same horizon", func() {
			t := s.create(ownerA, weeklyDTO("2024-01-01"))

			first, err := s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.January, 31))
			Expect(err).NotTo(HaveOccurred())
			second, err := s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.January, 31))
			Expect(err).NotTo(HaveOccurred())

			Expect(first).To(Equal(5))
			Expect(second).To(Equal(0))
			Expect(s.allEntries()).To(Equal(int64(5)))
			Expect(s.allRecords()).To(Equal(int64(5)))
		})

		It("extends the series when the horizon moves forward", func() {
			t := s.create(ownerA, weeklyDTO("2024-01-01"))

			_, err := s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.January, 15))
			Expect(err).NotTo(HaveOccurred())
			created, err := s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.January, 31))
			Expect(err).NotTo(HaveOccurred())

			Expect(created).To(Equal(2))
			Expect(s.entryDates(t.ID)).To(HaveLen(5))
		})

		It("clamps a monthly due day to short months", func() {
			t := s.create(ownerA, monthlyDTO("2024-01-31", intPtr(31)))

			created, err := s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.April, 30))
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(Equal(4))
			Expect(s.entryDates(t.ID)).To(Equal([]string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}))
		})

		It("keeps the start day across runs for monthly templates without a due day", func() {
			t := s.create(ownerA, monthlyDTO("2024-01-31", nil))

			_, err := s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.February, 29))
			Expect(err).NotTo(HaveOccurred())
			_, err = s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.April, 30))
			Expect(err).NotTo(HaveOccurred())

			Expect(s.entryDates(t.ID)).To(Equal([]string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}))
		})

		It("includes an occurrence on the end date and stops there", func() {
			dto := weeklyDTO("2024-01-01")
			dto.EndDate = strPtr("2024-01-15")
			t := s.create(ownerA, dto)

			created, err := s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.March, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(Equal(3))
			Expect(s.entryDates(t.ID)).To(Equal([]string{"2024-01-01", "2024-01-08", "2024-01-15"}))
		})

		It("creates nothing when the horizon is before the start date", func() {
			t := s.create(ownerA, weeklyDTO("2024-02-01"))

			created, err := s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.January, 31))
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(Equal(0))
			Expect(s.allEntries()).To(BeZero())
		})

		It("does nothing for an inactive template", func() {
			t := s.create(ownerA, weeklyDTO("2024-01-01"))
			_, err := s.service.SetActive(ctx, scope.ForOwner(ownerA), t.ID, false)
			Expect(err).NotTo(HaveOccurred())

			created, err := s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.January, 31))
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(Equal(0))
			Expect(s.allEntries()).To(BeZero())
		})

		It("returns not found for an unknown template", func() {
			_, err := s.engine.GenerateForTemplate(ctx, uuid.NewString(), date(2024, time.January, 31))
			Expect(internal.IsNotFound(err)).To(BeTrue())
		})

		It("copies the template terms onto each entry with the generated marker", func() {
			dto := monthlyDTO("2024-01-10", intPtr(10))
			dto.VehicleID = strPtr("truck-7")
			t := s.create(ownerA, dto)

			_, err := s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.January, 31))
			Expect(err).NotTo(HaveOccurred())

			entries := s.entries(t.ID)
			Expect(entries).To(HaveLen(1))
			e := entries[0]
			Expect(e.Description).To(Equal("Garage rent" + testMarker))
			Expect(e.Amount.Equal(decimal.RequireFromString("1200.50"))).To(BeTrue())
			Expect(e.OwnerID).To(Equal(ownerA))
			Expect(e.Kind).To(Equal("expense"))
			Expect(e.IsPaid).To(BeFalse())
			Expect(e.VehicleID).To(HaveValue(Equal("truck-7")))
			Expect(e.Counterparty).To(HaveValue(Equal("Acme Garages")))
		})

		It("leaves existing entries alone after a template edit", func() {
			t := s.create(ownerA, weeklyDTO("2024-01-01"))
			_, err := s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.January, 14))
			Expect(err).NotTo(HaveOccurred())

			newAmount := decimal.RequireFromString("175.00")
			_, err = s.service.Update(ctx, scope.ForOwner(ownerA), t.ID, recurring.UpdateTemplateDTO{Amount: &newAmount})
			Expect(err).NotTo(HaveOccurred())
			_, err = s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.January, 31))
			Expect(err).NotTo(HaveOccurred())

			amounts := map[string]string{}
			for _, e := range s.entries(t.ID) {
				amounts[recurring.DateKey(e.OccurrenceDate)] = e.Amount.StringFixed(2)
			}
			Expect(amounts).To(Equal(map[string]string{
				"2024-01-01": "150.00",
				"2024-01-08": "150.00",
				"2024-01-15": "175.00",
				"2024-01-22": "175.00",
				"2024-01-29": "175.00",
			}))
		})

		It("creates each occurrence once under concurrent calls", func() {
			t := s.create(ownerA, weeklyDTO("2024-01-01"))

			var wg sync.WaitGroup
			totals := make([]int, 6)
			for i := range totals {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					n, err := s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.January, 31))
					Expect(err).NotTo(HaveOccurred())
					totals[i] = n
				}(i)
			}
			wg.Wait()

			sum := 0
			for _, n := range totals {
				sum += n
			}
			Expect(sum).To(Equal(5))
			Expect(s.allEntries()).To(Equal(int64(5)))
		})

		It("skips an occurrence another process already recorded", func() {
			t := s.create(ownerA, weeklyDTO("2024-01-01"))
			_, err := s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.January, 8))
			Expect(err).NotTo(HaveOccurred())

			// a record for 2024-01-22 written elsewhere, out of order
			entryID := uuid.NewString()
			Expect(s.db.Create(&recurringDatamodel.LedgerEntry{
				ID: entryID, OwnerID: ownerA, Kind: "expense", Amount: decimal.NewFromInt(150),
				OccurrenceDate: date(2024, time.January, 22), Description: "Vehicle lease" + testMarker,
			}).Error).To(Succeed())
			Expect(s.db.Create(&recurringDatamodel.GenerationRecord{
				ID: uuid.NewString(), TemplateID: t.ID, EntryID: entryID, OccurrenceDate: date(2024, time.January, 22),
			}).Error).To(Succeed())

			created, err := s.engine.GenerateForTemplate(ctx, t.ID, date(2024, time.January, 31))
			Expect(err).NotTo(HaveOccurred())
			// anchored on the latest record, so 01-15 is never revisited
			Expect(created).To(Equal(1))
			Expect(s.entryDates(t.ID)).To(Equal([]string{"2024-01-01", "2024-01-08", "2024-01-22", "2024-01-29"}))
		})

		It("rejects a stored template with a corrupt rule", func() {
			id := insertCorruptTemplate(s, ownerA)

			_, err := s.engine.GenerateForTemplate(ctx, id, date(2024, time.January, 31))
			Expect(internal.IsValidation(err)).To(BeTrue())
		})
	})

	Describe("GenerateAll", func() {
		It("processes every active template in the system scope and reports failures", func() {
			a := s.create(ownerA, weeklyDTO("2024-01-01"))
			b := s.create(ownerB, monthlyDTO("2024-01-15", intPtr(15)))
			inactive := s.create(ownerB, weeklyDTO("2024-01-01"))
			_, err := s.service.SetActive(ctx, scope.ForOwner(ownerB), inactive.ID, false)
			Expect(err).NotTo(HaveOccurred())
			corrupt := insertCorruptTemplate(s, ownerA)

			result, err := s.engine.GenerateAll(ctx, scope.System(), date(2024, time.January, 31))
			Expect(err).NotTo(HaveOccurred())

			Expect(result.TotalCreated).To(Equal(6))
			Expect(result.Results).To(ConsistOf(
				recurring.TemplateResult{TemplateID: a.ID, Created: 5},
				recurring.TemplateResult{TemplateID: b.ID, Created: 1},
			))
			Expect(result.HasFailures()).To(BeTrue())
			Expect(result.Failures).To(HaveLen(1))
			Expect(result.Failures[0].TemplateID).To(Equal(corrupt))
			Expect(result.Failures[0].Code).To(Equal(internal.ErrCodeInvalidDueDay))
		})

		It("limits a tenant scope to its own templates", func() {
			a := s.create(ownerA, weeklyDTO("2024-01-01"))
			s.create(ownerB, weeklyDTO("2024-01-01"))

			result, err := s.engine.GenerateAll(ctx, scope.ForOwner(ownerA), date(2024, time.January, 31))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Results).To(Equal([]recurring.TemplateResult{{TemplateID: a.ID, Created: 5}}))
			Expect(result.HasFailures()).To(BeFalse())
		})

		It("is idempotent across batch runs", func() {
			s.create(ownerA, weeklyDTO("2024-01-01"))
			s.create(ownerB, weeklyDTO("2024-01-03"))

			first, err := s.engine.GenerateAll(ctx, scope.System(), date(2024, time.January, 31))
			Expect(err).NotTo(HaveOccurred())
			second, err := s.engine.GenerateAll(ctx, scope.System(), date(2024, time.January, 31))
			Expect(err).NotTo(HaveOccurred())

			Expect(first.TotalCreated).To(Equal(10))
			Expect(second.TotalCreated).To(Equal(0))
		})

		It("requires a scope", func() {
			_, err := s.engine.GenerateAll(ctx, scope.Scope{}, date(2024, time.January, 31))
			Expect(err).To(MatchError(internal.ErrMissingScope))
		})
	})
})

// insertCorruptTemplate stores a template that bypassed validation.
func insertCorruptTemplate(s *stack, owner string) string {
	row := &recurringDatamodel.RecurringTemplate{
		ID:          uuid.NewString(),
		OwnerID:     owner,
		Kind:        "expense",
		Amount:      decimal.NewFromInt(80),
		Description: "Broken schedule",
		Frequency:   "monthly",
		DueDay:      intPtr(40),
		StartDate:   date(2024, time.January, 1),
		IsActive:    true,
	}
	Expect(s.db.Create(row).Error).To(Succeed())
	return row.ID
}
