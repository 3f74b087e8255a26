package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"money-exchange/internal/config"
	"money-exchange/internal/exchange"
	"money-exchange/internal/logger"
	"money-exchange/internal/service"
)

// errorIndicator is printed on stdout for any failure
const errorIndicator = "error"

type options struct {
	from   string
	to     string
	amount string
	list   bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("convert", flag.ContinueOnError)
	flags.SetOutput(stderr)

	var opts options
	flags.StringVar(&opts.from, "from", "usd", "Source currency code")
	flags.StringVar(&opts.to, "to", "eur", "Target currency code")
	flags.StringVar(&opts.amount, "amount", "", "Amount to convert, a decimal comma is accepted")
	flags.BoolVar(&opts.list, "list", false, "Print the selectable currencies with their current rates")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		return fail(stdout, stderr, err)
	}

	// logs go to stderr so stdout only carries the result
	log := logger.NewWithOutput(cfg.LogLevel, stderr)
	ratesService := service.NewRatesService(cfg, log, nil)

	return execute(context.Background(), ratesService, opts, stdout, stderr)
}

func execute(ctx context.Context, ratesService *service.RatesService, opts options, stdout, stderr io.Writer) int {
	var amount float64
	if !opts.list {
		// validated before any network call
		parsed, err := exchange.ParseAmount(opts.amount)
		if err != nil {
			return fail(stdout, stderr, err)
		}
		amount = parsed
	}

	if _, err := ratesService.Refresh(ctx); err != nil {
		return fail(stdout, stderr, err)
	}

	if opts.list {
		printRates(ratesService, stdout)
		return 0
	}

	result, err := ratesService.Convert(amount, opts.from, opts.to)
	if err != nil {
		return fail(stdout, stderr, err)
	}

	fmt.Fprintf(stdout, "%s %s = %s %s\n",
		exchange.FormatAmount(result.Amount), strings.ToUpper(result.From),
		color.New(color.FgGreen, color.Bold).Sprint(result.Formatted), strings.ToUpper(result.To))
	return 0
}

func printRates(ratesService *service.RatesService, stdout io.Writer) {
	ratesResponse, _ := ratesService.SelectableRates()

	header := color.New(color.FgCyan)
	header.Fprintf(stdout, "Rates per 1 %s as of %s\n", strings.ToUpper(ratesResponse.Base), ratesResponse.AsOf)
	for _, code := range ratesService.Currencies() {
		rate, ok := ratesResponse.Rates[code]
		if !ok {
			fmt.Fprintf(stdout, "  %s  %s\n", strings.ToUpper(code), color.YellowString("unavailable"))
			continue
		}
		fmt.Fprintf(stdout, "  %s  %v\n", strings.ToUpper(code), rate)
	}
}

func fail(stdout, stderr io.Writer, err error) int {
	fmt.Fprintln(stdout, errorIndicator)
	fmt.Fprintln(stderr, color.RedString(err.Error()))
	return 1
}
