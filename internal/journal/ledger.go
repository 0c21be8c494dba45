package journal

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
	"trade_journal/internal/models"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerColumns: фиксированная схема журнала. Любое расхождение заголовка
// существующего файла => файл уходит в бэкап и создаётся новый.
var LedgerColumns = []string{
	"time", "symbol", "position_side",
	"side", "qty", "price", "realized_pnl",
	"fee", "fee_asset",
	"position_qty", "entry_price",
	"leverage", "margin_type",
	"margin_asset", "position_margin", "unrealized_pnl",
	"stop_price", "take_profit_price", "r_multiple",
	"order_id", "trade_id", "source",
}

const (
	ledgerTimeLayout  = "2006-01-02T15:04:05.000Z07:00"
	legacyTimeLayout  = "2006-01-02 15:04:05"
	backupStampLayout = "20060102_150405"
)

// LedgerRow: одна строка журнала. Пишется один раз, не переписывается.
type LedgerRow struct {
	Time         time.Time
	Symbol       string
	PositionSide string
	Side         models.Side
	Qty          decimal.Decimal
	Price        decimal.Decimal
	RealizedPnl  decimal.Decimal
	Fee          decimal.Decimal
	FeeAsset     string

	PositionQty    decimal.Decimal
	EntryPrice     decimal.Decimal
	Leverage       int
	MarginType     string
	MarginAsset    string
	PositionMargin decimal.Decimal
	UnrealizedPnl  decimal.Decimal

	StopPrice       decimal.NullDecimal
	TakeProfitPrice decimal.NullDecimal
	RMultiple       decimal.NullDecimal

	OrderID int64
	TradeID int64
	Source  models.Source
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

// Record: строка CSV в порядке LedgerColumns.
func (r LedgerRow) Record(loc *time.Location) []string {
	if loc == nil {
		loc = time.UTC
	}
	return []string{
		r.Time.In(loc).Format(ledgerTimeLayout),
		r.Symbol,
		r.PositionSide,
		string(r.Side),
		r.Qty.String(),
		r.Price.String(),
		r.RealizedPnl.String(),
		r.Fee.String(),
		r.FeeAsset,
		r.PositionQty.String(),
		r.EntryPrice.String(),
		strconv.Itoa(r.Leverage),
		r.MarginType,
		r.MarginAsset,
		r.PositionMargin.String(),
		r.UnrealizedPnl.String(),
		nullString(r.StopPrice),
		nullString(r.TakeProfitPrice),
		nullString(r.RMultiple),
		strconv.FormatInt(r.OrderID, 10),
		strconv.FormatInt(r.TradeID, 10),
		string(r.Source),
	}
}

// ParseLedgerTime разбирает колонку time; старый формат без зоны читается в loc.
func ParseLedgerTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(legacyTimeLayout, s, loc); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseNullDecimal(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func parseLedgerRecord(rec []string, loc *time.Location) (LedgerRow, bool) {
	if len(rec) != len(LedgerColumns) {
		return LedgerRow{}, false
	}
	// trade_id пишется целым, но на всякий случай принимаем и "12.0"
	tid, err := strconv.ParseInt(strings.TrimSpace(rec[20]), 10, 64)
	if err != nil {
		f, fErr := strconv.ParseFloat(strings.TrimSpace(rec[20]), 64)
		if fErr != nil {
			return LedgerRow{}, false
		}
		tid = int64(f)
	}
	ts, _ := ParseLedgerTime(rec[0], loc)
	lev, _ := strconv.Atoi(strings.TrimSpace(rec[11]))
	oid, _ := strconv.ParseInt(strings.TrimSpace(rec[19]), 10, 64)

	return LedgerRow{
		Time:            ts,
		Symbol:          strings.TrimSpace(rec[1]),
		PositionSide:    rec[2],
		Side:            models.Side(rec[3]),
		Qty:             parseDecimal(rec[4]),
		Price:           parseDecimal(rec[5]),
		RealizedPnl:     parseDecimal(rec[6]),
		Fee:             parseDecimal(rec[7]),
		FeeAsset:        rec[8],
		PositionQty:     parseDecimal(rec[9]),
		EntryPrice:      parseDecimal(rec[10]),
		Leverage:        lev,
		MarginType:      rec[12],
		MarginAsset:     rec[13],
		PositionMargin:  parseDecimal(rec[14]),
		UnrealizedPnl:   parseDecimal(rec[15]),
		StopPrice:       parseNullDecimal(rec[16]),
		TakeProfitPrice: parseNullDecimal(rec[17]),
		RMultiple:       parseNullDecimal(rec[18]),
		OrderID:         oid,
		TradeID:         tid,
		Source:          models.Source(rec[21]),
	}, true
}

// ReadLedger читает все строки журнала. Битые строки пропускаются.
// Файла нет: пустой результат без ошибки.
func ReadLedger(path string, loc *time.Location) ([]LedgerRow, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "open ledger")
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read ledger header")
	}
	if !headerMatches(header) {
		return nil, errors.Errorf("ledger header mismatch: %v", header)
	}

	var rows []LedgerRow
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// битая строка: идём дальше, остальное журнала ценнее
			continue
		}
		if row, ok := parseLedgerRecord(rec, loc); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func headerMatches(header []string) bool {
	if len(header) != len(LedgerColumns) {
		return false
	}
	for i, col := range header {
		if i == 0 {
			col = strings.TrimPrefix(col, "\ufeff")
		}
		if strings.TrimSpace(col) != LedgerColumns[i] {
			return false
		}
	}
	return true
}

// EnsureLedgerFile готовит файл журнала: создаёт с заголовком, если его нет,
// и архивирует (path.backup_YYYYMMDD_HHMMSS), если заголовок не совпадает или не читается.
// Возвращает имя бэкапа, если он был сделан.
func EnsureLedgerFile(path string, now time.Time) (string, error) {
	st, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", writeHeader(path)
	}
	if err != nil {
		return "", errors.Wrap(err, "stat ledger")
	}
	if st.Size() == 0 {
		return "", writeHeader(path)
	}

	ok, readErr := readHeaderMatches(path)
	if readErr == nil && ok {
		return "", nil
	}

	backup := path + ".backup_" + now.Format(backupStampLayout)
	if err := os.Rename(path, backup); err != nil {
		return "", errors.Wrapf(err, "archive ledger to %s", backup)
	}
	return backup, writeHeader(path)
}

func readHeaderMatches(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return false, err
	}
	return headerMatches(header), nil
}

func writeHeader(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "create ledger")
	}
	w := csv.NewWriter(f)
	if err := w.Write(LedgerColumns); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "write ledger header")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "flush ledger header")
	}
	return f.Close()
}

// Ledger: append-only CSV. Вся запись идёт через FileExecutor.
type Ledger struct {
	path string
	loc  *time.Location
	exec *FileExecutor
	log  *zap.Logger

	f *os.File
	w *csv.Writer
}

// OpenLedger проверяет схему (с архивированием при расхождении) и открывает файл на дозапись.
func OpenLedger(path string, loc *time.Location, exec *FileExecutor, log *zap.Logger) (*Ledger, error) {
	if log == nil {
		log = zap.NewNop()
	}
	backup, err := EnsureLedgerFile(path, time.Now())
	if err != nil {
		return nil, err
	}
	if backup != "" {
		log.Warn("ledger schema changed, archived old file", zap.String("backup", backup))
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open ledger for append")
	}
	return &Ledger{
		path: path,
		loc:  loc,
		exec: exec,
		log:  log,
		f:    f,
		w:    csv.NewWriter(f),
	}, nil
}

func (l *Ledger) Path() string            { return l.path }
func (l *Ledger) Location() *time.Location { return l.loc }

// Append дописывает строку и ждёт, пока воркер сбросит её на диск.
func (l *Ledger) Append(row LedgerRow) error {
	rec := row.Record(l.loc)
	return l.exec.Do(func() error {
		if err := l.w.Write(rec); err != nil {
			return errors.Wrap(err, "write ledger row")
		}
		l.w.Flush()
		if err := l.w.Error(); err != nil {
			return errors.Wrap(err, "flush ledger row")
		}
		return nil
	})
}

// Close вызывать после закрытия executor'а.
func (l *Ledger) Close() error {
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		_ = l.f.Close()
		return errors.Wrap(err, "flush ledger")
	}
	return l.f.Close()
}
