// slotcheck is an operator CLI that runs a slot query against the live
// database. It exits 0 when the query succeeds (even with nothing open),
// 1 on a validation error in the inputs, and 2 on an infrastructure
// failure, so it can gate smoke tests and cron checks.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/pawdesk/pawdesk-platform/internal/apperr"
	"github.com/pawdesk/pawdesk-platform/internal/schedule"
	"github.com/pawdesk/pawdesk-platform/internal/slots"
	"github.com/pawdesk/pawdesk-platform/internal/timeanchor"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	var (
		practiceRaw = flag.String("practice", "", "practice UUID (required)")
		vetRaw      = flag.String("vet", "", "vet user UUID (optional)")
		when        = flag.String("when", "tomorrow", "natural-language time expression")
		minutes     = flag.Int("minutes", 30, "slot duration in minutes")
		preference  = flag.String("preference", "", "daypart preference: morning, afternoon, evening")
		timeout     = flag.Duration("timeout", 10*time.Second, "query timeout")
	)
	flag.Parse()

	practiceID, err := uuid.Parse(*practiceRaw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "slotcheck: invalid -practice: %v\n", err)
		return 1
	}
	var vetID *uuid.UUID
	if *vetRaw != "" {
		id, err := uuid.Parse(*vetRaw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "slotcheck: invalid -vet: %v\n", err)
			return 1
		}
		vetID = &id
	}
	pref, ok := timeanchor.ParseDaypart(*preference)
	if !ok {
		fmt.Fprintf(os.Stderr, "slotcheck: invalid -preference %q\n", *preference)
		return 1
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Fprintln(os.Stderr, "slotcheck: DATABASE_URL is required")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "slotcheck: connect: %v\n", err)
		return 2
	}
	defer pool.Close()

	store := schedule.NewStore(pool)
	engine := slots.NewEngine(store)

	practice, err := store.GetPractice(ctx, practiceID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "slotcheck: %v\n", err)
		return exitCodeFor(err)
	}
	loc, err := timeanchor.LoadZone(practice.Timezone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "slotcheck: %v\n", err)
		return exitCodeFor(err)
	}
	res, err := timeanchor.Interpret(*when, loc, time.Now().UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "slotcheck: %v\n", err)
		return exitCodeFor(err)
	}
	start, end := res.Bounds(time.Duration(*minutes) * time.Minute)

	result, err := engine.Find(ctx, slots.Query{
		PracticeID:  practiceID,
		VetUserID:   vetID,
		Window:      schedule.Interval{Start: start, End: end},
		SlotMinutes: *minutes,
		Preference:  pref,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "slotcheck: %v\n", err)
		return exitCodeFor(err)
	}

	if len(result.Slots) == 0 {
		if result.Reason != "" {
			fmt.Printf("no slots (%s)\n", result.Reason)
		} else {
			fmt.Println("no slots")
		}
		return 0
	}
	for _, s := range result.Slots {
		fmt.Printf("%s  vet=%s  %s\n",
			timeanchor.Localize(s.StartAt, loc, timeanchor.StyleFull),
			s.VetUserID,
			s.Classification,
		)
	}
	return 0
}

// exitCodeFor maps input and business failures to 1 and everything else,
// including untyped errors, to 2.
func exitCodeFor(err error) int {
	if code, ok := apperr.CodeOf(err); ok {
		switch code.Class() {
		case apperr.ClassInput, apperr.ClassBusiness:
			return 1
		}
	}
	return 2
}
