package hub

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sync/errgroup"

	"atmoview.dev/telemetry/internal/access"
	"atmoview.dev/telemetry/internal/registry"
	"atmoview.dev/telemetry/internal/telemetry"
)

var _ = Describe("Device registration", func() {
	It("should allocate unique ids under concurrent registration", func() {
		ctx := context.Background()

		const n = 20
		ids := make([]int64, n)

		g := new(errgroup.Group)
		for i := range n {
			g.Go(func() error {
				device, err := reg.RegisterDevice(ctx, "", 0, 0)
				if err != nil {
					return err
				}
				ids[i] = device.ID
				return nil
			})
		}
		Expect(g.Wait()).To(Succeed())

		seen := make(map[int64]struct{}, n)
		for _, id := range ids {
			seen[id] = struct{}{}
		}
		Expect(seen).To(HaveLen(n))
	})

	It("should derive a default name from the allocated id", func() {
		device, err := reg.RegisterDevice(context.Background(), "", 46.05, 14.51)
		Expect(err).NotTo(HaveOccurred())
		Expect(device.Name).To(ContainSubstring("Device"))
		Expect(device.Active).To(BeTrue())
	})

	It("should provision a queryable partition for each new device", func() {
		ctx := context.Background()

		device, err := reg.RegisterDevice(ctx, "partition check", 0, 0)
		Expect(err).NotTo(HaveOccurred())

		samples, err := store.Recent(ctx, device.ID, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(samples).To(BeEmpty())
	})

	It("should reject an active toggle for an unknown device", func() {
		err := reg.SetActive(context.Background(), 999999, false)
		Expect(err).To(MatchError(registry.ErrDeviceNotFound))
	})
})

var _ = Describe("Telemetry store", func() {
	var deviceID int64

	BeforeEach(func() {
		device, err := reg.RegisterDevice(context.Background(), "store test", 0, 0)
		Expect(err).NotTo(HaveOccurred())
		deviceID = device.ID
	})

	It("should return appended samples newest first", func() {
		ctx := context.Background()
		base := time.Now().UTC().Truncate(time.Second)

		t1 := base.Add(-3 * time.Minute)
		t2 := base.Add(-2 * time.Minute)
		t3 := base.Add(-1 * time.Minute)
		for _, ts := range []time.Time{t1, t2, t3} {
			err := store.Append(ctx, deviceID, &telemetry.Sample{Timestamp: ts, Temperature: 20})
			Expect(err).NotTo(HaveOccurred())
		}

		samples, err := store.Recent(ctx, deviceID, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(samples).To(HaveLen(3))
		Expect(samples[0].Timestamp.Unix()).To(Equal(t3.Unix()))
		Expect(samples[1].Timestamp.Unix()).To(Equal(t2.Unix()))
		Expect(samples[2].Timestamp.Unix()).To(Equal(t1.Unix()))
	})

	It("should stamp samples without a timestamp on arrival", func() {
		ctx := context.Background()

		err := store.Append(ctx, deviceID, &telemetry.Sample{Temperature: 21})
		Expect(err).NotTo(HaveOccurred())

		samples, err := store.Recent(ctx, deviceID, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(samples).To(HaveLen(1))
		Expect(samples[0].Timestamp).To(BeTemporally("~", time.Now().UTC(), time.Minute))
	})

	It("should honor the window limit", func() {
		ctx := context.Background()
		base := time.Now().UTC()

		for i := range 10 {
			err := store.Append(ctx, deviceID, &telemetry.Sample{
				Timestamp: base.Add(time.Duration(-i) * time.Second),
			})
			Expect(err).NotTo(HaveOccurred())
		}

		samples, err := store.Recent(ctx, deviceID, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(samples).To(HaveLen(5))
	})

	It("should reject appends for an unregistered device", func() {
		err := store.Append(context.Background(), 999999, &telemetry.Sample{})
		Expect(err).To(MatchError(telemetry.ErrUnknownDevice))
	})

	It("should hide and sweep samples past the retention horizon", func() {
		ctx := context.Background()

		// A second store over the same partitions with a much shorter
		// horizon; partition existence falls back to the catalog.
		shortStore, err := telemetry.NewStore(&telemetry.StoreConfig{
			Logger:    testLogger,
			DB:        db,
			Retention: time.Minute,
		})
		Expect(err).NotTo(HaveOccurred())

		expired := time.Now().UTC().Add(-10 * time.Minute)
		fresh := time.Now().UTC().Add(-10 * time.Second)
		Expect(store.Append(ctx, deviceID, &telemetry.Sample{Timestamp: expired})).To(Succeed())
		Expect(store.Append(ctx, deviceID, &telemetry.Sample{Timestamp: fresh})).To(Succeed())

		samples, err := shortStore.Recent(ctx, deviceID, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(samples).To(HaveLen(1))
		Expect(samples[0].Timestamp.Unix()).To(Equal(fresh.Unix()))

		removed, err := shortStore.Sweep(ctx, deviceID)
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(Equal(int64(1)))
	})
})

var _ = Describe("Dashboard flow", func() {
	It("should reject an unknown user", func() {
		_, err := engine.FetchDashboard(context.Background(), "nobody")
		Expect(err).To(MatchError(access.ErrUserNotFound))
	})

	It("should return an empty dashboard for a user with no grants", func() {
		ctx := context.Background()

		Expect(db.Create(&access.UserAccount{UserID: "grantless"}).Error).To(Succeed())

		views, err := engine.FetchDashboard(ctx, "grantless")
		Expect(err).NotTo(HaveOccurred())
		Expect(views).NotTo(BeNil())
		Expect(views).To(BeEmpty())
	})

	It("should join granted devices with chronological samples", func() {
		ctx := context.Background()

		first, err := reg.RegisterDevice(ctx, "dash a", 46.05, 14.51)
		Expect(err).NotTo(HaveOccurred())
		second, err := reg.RegisterDevice(ctx, "dash b", 45.81, 15.98)
		Expect(err).NotTo(HaveOccurred())

		Expect(resolver.Grant(ctx, "dash-user", first.ID)).To(Succeed())
		Expect(resolver.Grant(ctx, "dash-user", second.ID)).To(Succeed())

		base := time.Now().UTC().Truncate(time.Second)
		t1 := base.Add(-3 * time.Minute)
		t2 := base.Add(-2 * time.Minute)
		t3 := base.Add(-1 * time.Minute)
		for _, ts := range []time.Time{t3, t1, t2} {
			Expect(store.Append(ctx, first.ID, &telemetry.Sample{Timestamp: ts})).To(Succeed())
		}

		views, err := engine.FetchDashboard(ctx, "dash-user")
		Expect(err).NotTo(HaveOccurred())
		Expect(views).To(HaveLen(2))

		// Devices ascending by id, samples oldest first.
		Expect(views[0].ID).To(Equal(first.ID))
		Expect(views[1].ID).To(Equal(second.ID))

		Expect(views[0].Samples).To(HaveLen(3))
		Expect(views[0].Samples[0].Timestamp.Unix()).To(Equal(t1.Unix()))
		Expect(views[0].Samples[1].Timestamp.Unix()).To(Equal(t2.Unix()))
		Expect(views[0].Samples[2].Timestamp.Unix()).To(Equal(t3.Unix()))

		Expect(views[1].Samples).NotTo(BeNil())
		Expect(views[1].Samples).To(BeEmpty())
	})

	It("should not leak devices granted to other users", func() {
		ctx := context.Background()

		mine, err := reg.RegisterDevice(ctx, "mine", 0, 0)
		Expect(err).NotTo(HaveOccurred())
		other, err := reg.RegisterDevice(ctx, "other", 0, 0)
		Expect(err).NotTo(HaveOccurred())

		Expect(resolver.Grant(ctx, "alice-e2e", mine.ID)).To(Succeed())
		Expect(resolver.Grant(ctx, "bob-e2e", other.ID)).To(Succeed())

		summaries, err := engine.FetchDeviceSummaries(ctx, "alice-e2e")
		Expect(err).NotTo(HaveOccurred())
		Expect(summaries).To(HaveLen(1))
		Expect(summaries[0].ID).To(Equal(mine.ID))
	})

	It("should tolerate duplicate grants", func() {
		ctx := context.Background()

		device, err := reg.RegisterDevice(ctx, "dup", 0, 0)
		Expect(err).NotTo(HaveOccurred())

		Expect(resolver.Grant(ctx, "dup-user", device.ID)).To(Succeed())
		Expect(resolver.Grant(ctx, "dup-user", device.ID)).To(Succeed())

		ids, err := resolver.AuthorizedDevices(ctx, "dup-user")
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal([]int64{device.ID}))
	})
})
