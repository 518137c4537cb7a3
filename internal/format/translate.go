package format

// Epoch shifts and constants from the classifier contract. SAS and Stata
// share the 1960-01-01 epoch; SPSS uses 1582-10-14.
const (
	sasStataDayShift    int32 = 3653
	sasStataSecondShift int64 = 315_619_200
	sppsSecondShift     int64 = 12_219_379_200
)

// TranslateDate converts a raw Date-classified Float64 value to days since
// 1970-01-01.
func TranslateDate(raw float64, kind FileKind) int32 {
	if kind == SAV {
		return int32((int64(raw) - sppsSecondShift) / 86_400)
	}
	return int32(raw) - sasStataDayShift
}

// TranslateTime converts a raw Time-classified Float64 value to
// microseconds since midnight. Both SAS/Stata and SPSS store seconds of
// day; the fixed output unit is microseconds regardless of file kind.
func TranslateTime(raw float64) int64 {
	return int64(raw) * 1_000_000
}

// TranslateDateTime converts a raw DateTime-classified Float64 value to
// milliseconds since 1970-01-01T00:00:00Z.
func TranslateDateTime(raw float64, kind FileKind) int64 {
	if kind == SAV {
		return int64(raw) - sppsSecondShift*1000
	}
	return int64(raw) - sasStataSecondShift*1000
}

// Translate dispatches to the class-appropriate conversion and returns the
// epoch integer as an int64 (Date results fit in int32 and are widened;
// callers that need int32 days should use TranslateDate directly).
func Translate(raw float64, class Class, kind FileKind) int64 {
	switch class {
	case Date:
		return int64(TranslateDate(raw, kind))
	case Time:
		return TranslateTime(raw)
	case DateTime:
		return TranslateDateTime(raw, kind)
	default:
		return int64(raw)
	}
}
