package logging

// Per-category convenience functions, mirroring Get(Category).Info/Debug
// without requiring callers to hold onto a *Logger. One pair per category
// keeps call sites short (logging.Store("...") vs logging.Get(CategoryStore).Info("...")).

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{})  { Get(CategoryStore).Debug(format, args...) }

func Ranker(format string, args ...interface{})     { Get(CategoryRanker).Info(format, args...) }
func RankerDebug(format string, args ...interface{}) { Get(CategoryRanker).Debug(format, args...) }

func Injector(format string, args ...interface{})     { Get(CategoryInjector).Info(format, args...) }
func InjectorDebug(format string, args ...interface{}) { Get(CategoryInjector).Debug(format, args...) }

func Augmenter(format string, args ...interface{})     { Get(CategoryAugmenter).Info(format, args...) }
func AugmenterDebug(format string, args ...interface{}) { Get(CategoryAugmenter).Debug(format, args...) }

func Board(format string, args ...interface{})      { Get(CategoryBoard).Info(format, args...) }
func BoardDebug(format string, args ...interface{})  { Get(CategoryBoard).Debug(format, args...) }

func Router(format string, args ...interface{})     { Get(CategoryRouter).Info(format, args...) }
func RouterDebug(format string, args ...interface{}) { Get(CategoryRouter).Debug(format, args...) }

func Sync(format string, args ...interface{})     { Get(CategorySync).Info(format, args...) }
func SyncDebug(format string, args ...interface{}) { Get(CategorySync).Debug(format, args...) }

func Evaluator(format string, args ...interface{})     { Get(CategoryEvaluator).Info(format, args...) }
func EvaluatorDebug(format string, args ...interface{}) { Get(CategoryEvaluator).Debug(format, args...) }

func Embedding(format string, args ...interface{})     { Get(CategoryEmbedding).Info(format, args...) }
func EmbeddingDebug(format string, args ...interface{}) { Get(CategoryEmbedding).Debug(format, args...) }
