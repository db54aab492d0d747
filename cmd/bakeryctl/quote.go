package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	subscriptionapp "github.com/selkies/backend/internal/application/subscription"
	"github.com/selkies/backend/internal/domain/catalog"
	"github.com/selkies/backend/internal/domain/delivery"
	"github.com/selkies/backend/internal/domain/pricing"
	"github.com/selkies/backend/internal/domain/shared/valueobject"
	"github.com/selkies/backend/internal/domain/subscription"
)

// basketFile is the JSON document priced by the quote command
type basketFile struct {
	Recurrence string                 `json:"recurrence"`
	StartDate  string                 `json:"start_date"`
	EndDate    string                 `json:"end_date,omitempty"`
	Days       map[string][]basketRow `json:"days"`
}

type basketRow struct {
	Name     string          `json:"name"`
	Category string          `json:"category,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

func newQuoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quote FILE",
		Short: "Price a basket described in a JSON file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			basket, err := readBasket(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			plan, err := basket.toPlan(valueobject.Currency(cfg.Subscription.Currency))
			if err != nil {
				return err
			}
			engine := pricing.NewEngine(valueobject.Currency(cfg.Subscription.Currency))
			q, err := plan.Quote(engine)
			if err != nil {
				return err
			}
			tag, err := language.Parse(cfg.Subscription.Language)
			if err != nil {
				tag = language.English
			}
			return printQuote(cmd.OutOrStdout(), plan, q, tag)
		},
	}
}

func readBasket(stdin io.Reader, path string) (*basketFile, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var b basketFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("invalid basket file: %w", err)
	}
	return &b, nil
}

// toPlan replays the basket through the plan state machine, so the file is
// held to the same rules as the web flow.
func (b *basketFile) toPlan(currency valueobject.Currency) (*subscription.Plan, error) {
	plan := subscription.NewPlan(subscription.DefaultPolicy())

	mode, err := subscription.ParseRecurrence(b.Recurrence)
	if err != nil {
		return nil, err
	}
	if err := plan.ChooseRecurrence(mode); err != nil {
		return nil, err
	}

	start, err := delivery.ParseDate(b.StartDate)
	if err != nil {
		return nil, err
	}
	var end *time.Time
	if b.EndDate != "" {
		d, err := delivery.ParseDate(b.EndDate)
		if err != nil {
			return nil, err
		}
		end = &d
	}
	if err := plan.ChooseDates(start, end); err != nil {
		return nil, err
	}

	for day, rows := range b.Days {
		weekday, err := delivery.ParseWeekday(day)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			category := row.Category
			if category == "" {
				category = catalog.DefaultCategories[0]
			}
			price, err := valueobject.NewMoney(row.Price, currency)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", row.Name, err)
			}
			product, err := catalog.NewProduct(row.Name, category, price)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", row.Name, err)
			}
			for i := 0; i < row.Quantity; i++ {
				if err := plan.Increment(weekday, product); err != nil {
					return nil, err
				}
			}
		}
	}
	return plan, nil
}

func printQuote(out io.Writer, plan *subscription.Plan, q pricing.Quote, tag language.Tag) error {
	fmt.Fprintf(out, "%s plan starting %s", plan.Recurrence, delivery.FormatDate(plan.StartDate))
	if !plan.EndDate.IsZero() {
		fmt.Fprintf(out, ", ending %s", delivery.FormatDate(plan.EndDate))
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "day\titems\tper delivery\tdeliveries\ttotal\t")
	for _, line := range q.Lines {
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\t\n", line.Weekday, line.Items,
			subscriptionapp.FormatMoney(line.Subtotal, tag), line.Occurrences,
			subscriptionapp.FormatMoney(line.Total, tag))
	}
	fmt.Fprintf(w, "\t\t\t\t%s\t\n", subscriptionapp.FormatMoney(q.Total, tag))
	return w.Flush()
}
