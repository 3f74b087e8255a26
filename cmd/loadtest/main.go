package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// LoadTestConfig holds configuration for load testing
type LoadTestConfig struct {
	BaseURL         string
	Pairs           []string
	Amount          string
	ConcurrentUsers int
	RequestsPerUser int
	Timeout         time.Duration
	TestDuration    time.Duration
	RampUpDuration  time.Duration
	ThinkTime       time.Duration
}

// LoadTestResult holds the result of a single conversion request
type LoadTestResult struct {
	UserID     int
	RequestID  int
	Pair       string
	StatusCode int
	Duration   time.Duration
	Success    bool
	Error      error
}

// LoadTestSummary holds the summary of load test results
type LoadTestSummary struct {
	TotalRequests       int
	SuccessfulRequests  int
	FailedRequests      int
	StatusCodes         map[int]int
	TotalDuration       time.Duration
	AverageResponseTime time.Duration
	MinResponseTime     time.Duration
	MaxResponseTime     time.Duration
	RequestsPerSecond   float64
	ErrorRate           float64
	ResponseTime50th    time.Duration
	ResponseTime95th    time.Duration
	ResponseTime99th    time.Duration
}

func main() {
	var config LoadTestConfig
	var pairs string

	flag.StringVar(&config.BaseURL, "url", "http://localhost:8081/api/v1/convert", "Convert endpoint to test")
	flag.StringVar(&pairs, "pairs", "usd:eur,eur:rub,rub:usd", "Comma-separated from:to currency pairs, used round-robin")
	flag.StringVar(&config.Amount, "amount", "100", "Amount sent with every conversion")
	flag.IntVar(&config.ConcurrentUsers, "users", 10, "Number of concurrent users")
	flag.IntVar(&config.RequestsPerUser, "requests", 100, "Number of requests per user")
	flag.DurationVar(&config.Timeout, "timeout", 30*time.Second, "Request timeout")
	flag.DurationVar(&config.TestDuration, "duration", 0, "Test duration (0 = run until all requests complete)")
	flag.DurationVar(&config.RampUpDuration, "rampup", 5*time.Second, "Ramp-up duration")
	flag.DurationVar(&config.ThinkTime, "think", 100*time.Millisecond, "Think time between requests")
	flag.Parse()

	parsedPairs, err := parsePairs(pairs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	config.Pairs = parsedPairs
	if config.ConcurrentUsers <= 0 || config.RequestsPerUser <= 0 {
		fmt.Fprintln(os.Stderr, "users and requests must be positive")
		os.Exit(2)
	}

	fmt.Printf("Starting load test...\n")
	fmt.Printf("URL: %s\n", config.BaseURL)
	fmt.Printf("Pairs: %s\n", strings.Join(config.Pairs, ", "))
	fmt.Printf("Concurrent Users: %d\n", config.ConcurrentUsers)
	fmt.Printf("Requests per User: %d\n", config.RequestsPerUser)
	fmt.Printf("Ramp-up Duration: %v\n", config.RampUpDuration)
	fmt.Printf("Think Time: %v\n", config.ThinkTime)
	fmt.Println()

	summary := runLoadTest(config)
	printSummary(summary)
}

// parsePairs turns "usd:eur,eur:rub" into {"usd:eur", "eur:rub"}
func parsePairs(raw string) ([]string, error) {
	var pairs []string
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.ToLower(strings.TrimSpace(pair))
		if pair == "" {
			continue
		}
		from, to, ok := strings.Cut(pair, ":")
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("invalid pair %q, want from:to", pair)
		}
		pairs = append(pairs, pair)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no currency pairs given")
	}
	return pairs, nil
}

// conversionURL builds the GET URL for one pair
func conversionURL(baseURL, pair, amount string) string {
	from, to, _ := strings.Cut(pair, ":")
	query := url.Values{}
	query.Set("amount", amount)
	query.Set("from", from)
	query.Set("to", to)
	return baseURL + "?" + query.Encode()
}

func runLoadTest(config LoadTestConfig) LoadTestSummary {
	results := make(chan LoadTestResult, config.ConcurrentUsers*config.RequestsPerUser)
	client := &http.Client{Timeout: config.Timeout}

	startTime := time.Now()

	ctx := context.Background()
	if config.TestDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.TestDuration)
		defer cancel()
	}

	var wg sync.WaitGroup
	rampUpDelay := config.RampUpDuration / time.Duration(config.ConcurrentUsers)

	for userID := 0; userID < config.ConcurrentUsers; userID++ {
		wg.Add(1)
		go func(uid int) {
			defer wg.Done()

			select {
			case <-time.After(time.Duration(uid) * rampUpDelay):
			case <-ctx.Done():
				return
			}

			for reqID := 0; reqID < config.RequestsPerUser; reqID++ {
				if ctx.Err() != nil {
					return
				}

				pair := config.Pairs[(uid+reqID)%len(config.Pairs)]
				results <- makeRequest(ctx, client, conversionURL(config.BaseURL, pair, config.Amount), pair, uid, reqID)

				if config.ThinkTime > 0 {
					time.Sleep(config.ThinkTime)
				}
			}
		}(userID)
	}

	wg.Wait()
	close(results)

	return processResults(results, time.Since(startTime))
}

func makeRequest(ctx context.Context, client *http.Client, target, pair string, userID, requestID int) LoadTestResult {
	result := LoadTestResult{UserID: userID, RequestID: requestID, Pair: pair}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		result.Error = err
		return result
	}

	start := time.Now()
	response, err := client.Do(request)
	if err != nil {
		result.Duration = time.Since(start)
		result.Error = err
		return result
	}
	_, _ = io.Copy(io.Discard, response.Body)
	response.Body.Close()
	result.Duration = time.Since(start)

	result.StatusCode = response.StatusCode
	result.Success = response.StatusCode >= 200 && response.StatusCode < 300
	return result
}

func processResults(results <-chan LoadTestResult, totalDuration time.Duration) LoadTestSummary {
	summary := LoadTestSummary{
		TotalDuration: totalDuration,
		StatusCodes:   make(map[int]int),
	}
	var responseTimes []time.Duration

	for result := range results {
		summary.TotalRequests++
		summary.StatusCodes[result.StatusCode]++
		responseTimes = append(responseTimes, result.Duration)

		if result.Success {
			summary.SuccessfulRequests++
		} else {
			summary.FailedRequests++
		}
	}

	if summary.TotalRequests == 0 {
		return summary
	}

	summary.ErrorRate = float64(summary.FailedRequests) / float64(summary.TotalRequests) * 100
	if totalDuration > 0 {
		summary.RequestsPerSecond = float64(summary.TotalRequests) / totalDuration.Seconds()
	}

	sort.Slice(responseTimes, func(i, j int) bool { return responseTimes[i] < responseTimes[j] })

	var totalResponseTime time.Duration
	for _, responseTime := range responseTimes {
		totalResponseTime += responseTime
	}
	summary.AverageResponseTime = totalResponseTime / time.Duration(len(responseTimes))
	summary.MinResponseTime = responseTimes[0]
	summary.MaxResponseTime = responseTimes[len(responseTimes)-1]
	summary.ResponseTime50th = percentile(responseTimes, 50)
	summary.ResponseTime95th = percentile(responseTimes, 95)
	summary.ResponseTime99th = percentile(responseTimes, 99)

	return summary
}

// percentile expects sorted input
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * float64(p) / 100.0)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func printSummary(summary LoadTestSummary) {
	if summary.TotalRequests == 0 {
		color.Yellow("No requests were sent")
		return
	}

	fmt.Println("=== Load Test Results ===")
	fmt.Printf("Total Requests: %d\n", summary.TotalRequests)
	fmt.Printf("Successful Requests: %d (%.2f%%)\n", summary.SuccessfulRequests,
		float64(summary.SuccessfulRequests)/float64(summary.TotalRequests)*100)
	fmt.Printf("Failed Requests: %d (%.2f%%)\n", summary.FailedRequests, summary.ErrorRate)
	fmt.Printf("Total Duration: %v\n", summary.TotalDuration)
	fmt.Printf("Requests per Second: %.2f\n", summary.RequestsPerSecond)
	fmt.Printf("Average Response Time: %v\n", summary.AverageResponseTime)
	fmt.Printf("Min / Max Response Time: %v / %v\n", summary.MinResponseTime, summary.MaxResponseTime)
	fmt.Printf("p50 / p95 / p99: %v / %v / %v\n", summary.ResponseTime50th, summary.ResponseTime95th, summary.ResponseTime99th)

	statusCodes := make([]int, 0, len(summary.StatusCodes))
	for statusCode := range summary.StatusCodes {
		statusCodes = append(statusCodes, statusCode)
	}
	sort.Ints(statusCodes)
	for _, statusCode := range statusCodes {
		fmt.Printf("  status %d: %d\n", statusCode, summary.StatusCodes[statusCode])
	}

	fmt.Println("\n=== Performance Assessment ===")
	assess(summary.ErrorRate <= 5.0, "Error rate: %.2f%% (target: < 5%%)", summary.ErrorRate)
	assess(summary.AverageResponseTime <= 2*time.Second, "Average response time: %v (target: < 2s)", summary.AverageResponseTime)
	assess(summary.RequestsPerSecond >= 10, "Throughput: %.2f req/s (target: > 10 req/s)", summary.RequestsPerSecond)
}

func assess(ok bool, format string, args ...any) {
	if ok {
		color.Green("OK    "+format, args...)
		return
	}
	color.Red("WARN  "+format, args...)
}
