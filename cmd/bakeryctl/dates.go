package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/selkies/backend/internal/domain/delivery"
)

func newDatesCmd() *cobra.Command {
	var horizon int
	c := &cobra.Command{
		Use:   "dates",
		Short: "List the delivery dates a plan can start on",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cal, err := calendar(cfg)
			if err != nil {
				return err
			}
			if horizon == 0 {
				horizon = cfg.Subscription.StartDateHorizon
			}
			dates, err := cal.CandidateStartDates(horizon)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "today %s, next %d days:\n", delivery.FormatDate(cal.Today()), horizon)
			for _, d := range dates {
				fmt.Fprintf(out, "  %s  %s\n", delivery.FormatDate(d), d.Weekday())
			}
			return nil
		},
	}
	c.Flags().IntVar(&horizon, "horizon", 0, "days to look ahead (default: subscription.start_date_horizon)")
	return c
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check YYYY-MM-DD",
		Short: "Describe a date: delivery day, default end date and first delivery per weekday",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			d, err := delivery.ParseDate(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !delivery.IsDeliveryDay(d) {
				fmt.Fprintf(out, "%s is a %s: no deliveries, next delivery day is %s\n",
					delivery.FormatDate(d), d.Weekday(), delivery.FormatDate(delivery.NextDeliveryDay(d)))
				return nil
			}

			end, err := delivery.DefaultEndDate(d)
			if err != nil {
				return err
			}
			next, err := delivery.FirstOccurrencePerWeekday(d, cfg.Subscription.LookaheadDays)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s is a %s delivery day\n", delivery.FormatDate(d), d.Weekday())
			fmt.Fprintf(out, "default end date: %s\n", delivery.FormatDate(end))

			weekdays := make([]delivery.Weekday, 0, len(next))
			for w := range next {
				weekdays = append(weekdays, w)
			}
			sort.Slice(weekdays, func(i, j int) bool { return next[weekdays[i]].Before(next[weekdays[j]]) })
			fmt.Fprintln(out, "next deliveries are planned for:")
			for _, w := range weekdays {
				fmt.Fprintf(out, "  %-9s %s\n", w, delivery.FormatDate(next[w]))
			}
			return nil
		},
	}
}
