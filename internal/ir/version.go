package ir

// Version constants stamped into generated code and ledger rows.
const (
	// IRVersion is the model IR schema version.
	IRVersion = "1"

	// TranslatorName identifies the generator in emitted header comments.
	TranslatorName = "cellc"

	// TranslatorVersion is the cellc release version.
	TranslatorVersion = "0.4.0"
)
