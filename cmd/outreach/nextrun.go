package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"outreach/internal/schedule"
)

func newNextRunCmd() *cobra.Command {
	var (
		days  string
		clock string
		tz    string
		from  string
		count int
	)
	cmd := &cobra.Command{
		Use:   "next-run",
		Short: "Print upcoming run times for a schedule",
		Example: "  outreach next-run --days mon,wed --time 09:00 --tz Europe/Berlin\n" +
			"  outreach next-run --days fri --time 17:30 --tz America/New_York --from 2024-10-29T14:00:00Z -n 3",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := schedule.ParseDays(strings.Split(days, ","))
			if err != nil {
				return err
			}
			p := schedule.Preferences{Enabled: true, Days: d, Time: clock, Timezone: tz}
			if err := p.Validate(); err != nil {
				return err
			}

			now := time.Now().UTC()
			if from != "" {
				if now, err = time.Parse(time.RFC3339, from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
			}
			loc, _ := time.LoadLocation(tz)

			out := cmd.OutOrStdout()
			for i := 0; i < max(count, 1); i++ {
				next, err := schedule.NextRun(p, now)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s  (%s)\n", next.Format(time.RFC3339), next.In(loc).Format("Mon 2006-01-02 15:04 MST"))
				now = next
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&days, "days", "mon,tue,wed,thu,fri", "comma separated weekdays")
	cmd.Flags().StringVar(&clock, "time", "09:00", "local time of day, HH:MM")
	cmd.Flags().StringVar(&tz, "tz", "UTC", "IANA timezone")
	cmd.Flags().StringVar(&from, "from", "", "reference instant (RFC3339), default now")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of runs to print")
	return cmd
}
