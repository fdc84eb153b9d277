package utils

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"portfolioTracker/internal/domain"
)

// ReadTradesCSV loads ledger trades from a CSV export with the header
// id,platform,date,action,asset,price,quantity,fees,cost,value.
func ReadTradesCSV(filename string) ([]domain.Trade, error) {
	records, err := readRecords(filename, 10)
	if err != nil {
		return nil, err
	}

	trades := make([]domain.Trade, 0, len(records))
	for i, record := range records {
		date, err := domain.ParseDate(record[2])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", filename, i+2, err)
		}
		trade := domain.Trade{
			ID:       record[0],
			Platform: record[1],
			Date:     date,
			Action:   domain.TradeAction(record[3]),
			Asset:    record[4],
		}
		targets := []*decimal.Decimal{&trade.Price, &trade.Quantity, &trade.Fees, &trade.Cost, &trade.Value}
		for j, target := range targets {
			if *target, err = decimal.NewFromString(record[5+j]); err != nil {
				return nil, fmt.Errorf("%s row %d: invalid decimal %q: %w", filename, i+2, record[5+j], err)
			}
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// ReadPricesCSV loads historical close prices from a CSV export with the
// header asset,date,price.
func ReadPricesCSV(filename string) ([]domain.HistoricalPrice, error) {
	records, err := readRecords(filename, 3)
	if err != nil {
		return nil, err
	}

	prices := make([]domain.HistoricalPrice, 0, len(records))
	for i, record := range records {
		date, err := domain.ParseDate(record[1])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", filename, i+2, err)
		}
		price, err := decimal.NewFromString(record[2])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid decimal %q: %w", filename, i+2, record[2], err)
		}
		prices = append(prices, domain.HistoricalPrice{Asset: record[0], Date: date, Price: price})
	}
	return prices, nil
}

// readRecords reads a CSV file, skipping the header row and enforcing a
// fixed field count.
func readRecords(filename string, fields int) ([][]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = fields
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s is empty", filename)
	}
	return records[1:], nil
}
