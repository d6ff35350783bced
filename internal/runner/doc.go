// Package runner provides the virtual-user execution engine for surge.
//
// A run schedules a fixed pool of virtual users (VUs) over a duration. Every
// VU repeatedly invokes the same iteration function until the duration
// elapses, then finishes its in-flight iteration and stops.
//
// # Basic Usage
//
//	r := runner.New(runner.Options{
//		VUs:      5,
//		Duration: 15 * time.Second,
//		Pause:    time.Second,
//		Setup: func(ctx context.Context) (any, error) {
//			return loadFixtures(ctx)
//		},
//		Iteration: func(vu *runner.VUContext) error {
//			resp, err := client.Do(vu.Context(), req)
//			if err != nil {
//				return err
//			}
//			vu.Check("status is 201", resp.StatusCode == 201)
//			return nil
//		},
//	})
//	summary, err := r.Run(ctx)
//
// # Lifecycle
//
// Run validates [Options] and fails with a [ConfigError] before anything else
// happens. Setup runs exactly once; when it fails Run returns a [SetupError]
// and no VU is started. After every VU has stopped, Teardown runs exactly once
// and its failure is only logged as a [TeardownError].
//
// # Virtual Users
//
// Each VU moves through [VUStateIdle], [VUStateRunning], [VUStateStopping] and
// [VUStateStopped]. The stop condition is checked at every iteration
// boundary; iterations are never interrupted mid-body. An iteration that
// returns an error or panics is recorded as an [IterationError] and the VU
// continues with its next iteration.
//
// # Time
//
// All time reads go through [Clock]. [FakeClock] lets tests advance a
// simulated clock tick by tick.
package runner
