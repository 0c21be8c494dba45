package journal

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Watermark: до какой сделки символ уже в журнале.
type Watermark struct {
	LastTradeID int64
	LastEventTS int64 // ms, 0: неизвестно
}

type stateFile struct {
	LastTradeID map[string]int64 `json:"last_trade_id"`
	LastEventTS map[string]int64 `json:"last_event_ts"`
	UpdatedAt   string           `json:"updated_at"`
}

// StateStore: дедуп-стейт. Пишет только процессор, читают все.
// Значения по символу только растут.
type StateStore struct {
	path string
	exec *FileExecutor
	log  *zap.Logger

	mu    sync.RWMutex
	marks map[string]Watermark

	// OnPersistError: хук для метрик.
	OnPersistError func(error)
}

func NewStateStore(path string, exec *FileExecutor, log *zap.Logger) *StateStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &StateStore{
		path:  path,
		exec:  exec,
		log:   log,
		marks: make(map[string]Watermark),
	}
}

func (s *StateStore) Get(symbol string) (Watermark, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.marks[symbol]
	return w, ok
}

// IsProcessed: сделка уже учтена (tradeID <= последнего записанного).
func (s *StateStore) IsProcessed(symbol string, tradeID int64) bool {
	w, ok := s.Get(symbol)
	return ok && tradeID <= w.LastTradeID
}

// RecordProcessed двигает водяной знак вперёд и планирует сохранение.
// Старые и повторные id игнорируются (false).
func (s *StateStore) RecordProcessed(symbol string, tradeID, eventTS int64) bool {
	s.mu.Lock()
	w, ok := s.marks[symbol]
	if ok && tradeID <= w.LastTradeID {
		s.mu.Unlock()
		return false
	}
	w.LastTradeID = tradeID
	if eventTS > w.LastEventTS {
		w.LastEventTS = eventTS
	}
	s.marks[symbol] = w
	s.mu.Unlock()

	s.Persist()
	return true
}

// Symbols: отсортированный список символов со стейтом.
func (s *StateStore) Symbols() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.marks))
	for sym := range s.marks {
		out = append(out, sym)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.marks)
}

func (s *StateStore) encode() ([]byte, error) {
	s.mu.RLock()
	f := stateFile{
		LastTradeID: make(map[string]int64, len(s.marks)),
		LastEventTS: make(map[string]int64, len(s.marks)),
		UpdatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	for sym, w := range s.marks {
		f.LastTradeID[sym] = w.LastTradeID
		if w.LastEventTS > 0 {
			f.LastEventTS[sym] = w.LastEventTS
		}
	}
	s.mu.RUnlock()

	bs, err := sonic.ConfigStd.MarshalIndent(&f, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal state")
	}
	return bs, nil
}

func (s *StateStore) write() error {
	bs, err := s.encode()
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, bs)
}

// Persist ставит запись стейта в очередь файлового воркера и не ждёт.
// Ошибка только логируется: следующий Persist перепишет файл целиком.
func (s *StateStore) Persist() {
	done := s.exec.Submit(s.write)
	go func() {
		if err := <-done; err != nil {
			s.persistFailed(err)
		}
	}()
}

// PersistNow: синхронная запись (shutdown, rebuild-state).
func (s *StateStore) PersistNow() error {
	err := s.exec.Do(s.write)
	if errors.Is(err, ErrExecutorClosed) {
		err = s.write()
	}
	if err != nil {
		s.persistFailed(err)
	}
	return err
}

func (s *StateStore) persistFailed(err error) {
	s.log.Error("persist state", zap.String("path", s.path), zap.Error(err))
	if s.OnPersistError != nil {
		s.OnPersistError(err)
	}
}

// RecoverFromLedger: max trade_id и max time по символу.
// Слияние по максимуму, повторный вызов ничего не меняет.
func (s *StateStore) RecoverFromLedger(rows []LedgerRow) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, r := range rows {
		if r.Symbol == "" {
			continue
		}
		w, ok := s.marks[r.Symbol]
		upd := !ok
		if r.TradeID > w.LastTradeID {
			w.LastTradeID = r.TradeID
			upd = true
		}
		if !r.Time.IsZero() {
			if ts := r.Time.UnixMilli(); ts > w.LastEventTS {
				w.LastEventTS = ts
				upd = true
			}
		}
		if upd {
			s.marks[r.Symbol] = w
			changed++
		}
	}
	return changed
}

// Load читает файл стейта. Если файла нет, он битый или пустой, а в журнале
// есть строки, стейт восстанавливается из журнала. true означает восстановление.
func (s *StateStore) Load(ledgerPath string, loc *time.Location) (bool, error) {
	loadErr := s.loadFile()
	if loadErr == nil && s.Len() > 0 {
		s.log.Info("state loaded", zap.String("path", s.path), zap.Int("symbols", s.Len()))
		return false, nil
	}
	if loadErr != nil && !os.IsNotExist(errors.Cause(loadErr)) {
		s.log.Warn("state file unreadable, rebuilding from ledger", zap.Error(loadErr))
	}

	rows, err := ReadLedger(ledgerPath, loc)
	if err != nil {
		// журнал со старой схемой уйдёт в бэкап при открытии, стартуем с нуля
		s.log.Warn("ledger unreadable, starting with empty state", zap.Error(err))
		return false, nil
	}
	if len(rows) == 0 {
		return false, nil
	}

	n := s.RecoverFromLedger(rows)
	s.log.Info("state recovered from ledger",
		zap.Int("rows", len(rows)),
		zap.Int("symbols", n),
	)
	return true, nil
}

func (s *StateStore) loadFile() error {
	bs, err := os.ReadFile(s.path)
	if err != nil {
		return errors.Wrap(err, "read state")
	}
	var f stateFile
	if err := sonic.Unmarshal(bs, &f); err != nil {
		return errors.Wrap(err, "decode state")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for sym, id := range f.LastTradeID {
		w := s.marks[sym]
		if id > w.LastTradeID {
			w.LastTradeID = id
		}
		if ts := f.LastEventTS[sym]; ts > w.LastEventTS {
			w.LastEventTS = ts
		}
		s.marks[sym] = w
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "mkdir state dir")
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrap(err, "create temp state")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "write temp state")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "sync temp state")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "close temp state")
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "rename state")
	}
	return nil
}
