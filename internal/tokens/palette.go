package tokens

// IBM inspired colors.
const (
	White   Color = "#ffffff"
	Blue    Color = "#3ebce6"
	Magenta Color = "#f51281"
	Orange  Color = "#e6ab3e"
	Red     Color = "#ff000b"
	Purple  Color = "#891fff"
	Green   Color = "#02ed6e"
	Gray10  Color = "#101010"
	Gray20  Color = "#202020"
	Gray30  Color = "#303030"
	Gray35  Color = "#353535"
	Gray40  Color = "#404040"
	Gray60  Color = "#606060"
	Gray99  Color = "#999999"
	GrayAA  Color = "#aaaaaa"
)

// Palette maps semantic roles to colors.
type Palette struct {
	Keyword    Color `json:"keyword" mapstructure:"keyword" jsonschema:"description=Keywords such as struct"`
	Type       Color `json:"type" mapstructure:"type" jsonschema:"description=Type names"`
	Field      Color `json:"field" mapstructure:"field" jsonschema:"description=Record field names"`
	Constant   Color `json:"constant" mapstructure:"constant" jsonschema:"description=Literal values"`
	Delimiter  Color `json:"delimiter" mapstructure:"delimiter" jsonschema:"description=Punctuation"`
	Address    Color `json:"address" mapstructure:"address" jsonschema:"description=Row address prefix"`
	Error      Color `json:"error" mapstructure:"error" jsonschema:"description=Decode errors and unresolved names"`
	Brackets   Color `json:"brackets" mapstructure:"brackets"`
	Comment    Color `json:"comment" mapstructure:"comment"`
	Item       Color `json:"item" mapstructure:"item" jsonschema:"description=Identifiers and plain symbol names"`
	Known      Color `json:"known" mapstructure:"known"`
	Root       Color `json:"root" mapstructure:"root" jsonschema:"description=Module names"`
	Annotation Color `json:"annotation" mapstructure:"annotation" jsonschema:"description=Labels and symbol brackets"`
	Special    Color `json:"special" mapstructure:"special"`
	Expr       Color `json:"expr" mapstructure:"expr"`
	Opcode     Color `json:"opcode" mapstructure:"opcode"`
	Register   Color `json:"register" mapstructure:"register"`
	Immediate  Color `json:"immediate" mapstructure:"immediate"`
	Attribute  Color `json:"attribute" mapstructure:"attribute"`
	Segment    Color `json:"segment" mapstructure:"segment" jsonschema:"description=Section ranges and raw bytes"`
	String     Color `json:"string" mapstructure:"string"`
	Text       Color `json:"text" mapstructure:"text"`
}

// DefaultPalette is the IBM scheme.
func DefaultPalette() Palette {
	return Palette{
		Keyword:    Purple,
		Type:       Blue,
		Field:      Magenta,
		Constant:   Orange,
		Delimiter:  Gray99,
		Address:    Gray40,
		Error:      Red,
		Brackets:   Gray60,
		Comment:    Gray20,
		Item:       Magenta,
		Known:      Purple,
		Root:       Purple,
		Annotation: Blue,
		Special:    Red,
		Expr:       Gray99,
		Opcode:     White,
		Register:   Magenta,
		Immediate:  Blue,
		Attribute:  Gray40,
		Segment:    Green,
		String:     Orange,
		Text:       White,
	}
}

// Valid reports whether c looks like "#rrggbb".
func (c Color) Valid() bool {
	if len(c) != 7 || c[0] != '#' {
		return false
	}
	for i := 1; i < 7; i++ {
		ch := c[i]
		if !((ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')) {
			return false
		}
	}
	return true
}

// Fill replaces unset roles with the defaults.
func (p Palette) Fill() Palette {
	d := DefaultPalette()
	fill := func(c *Color, def Color) {
		if *c == "" {
			*c = def
		}
	}
	fill(&p.Keyword, d.Keyword)
	fill(&p.Type, d.Type)
	fill(&p.Field, d.Field)
	fill(&p.Constant, d.Constant)
	fill(&p.Delimiter, d.Delimiter)
	fill(&p.Address, d.Address)
	fill(&p.Error, d.Error)
	fill(&p.Brackets, d.Brackets)
	fill(&p.Comment, d.Comment)
	fill(&p.Item, d.Item)
	fill(&p.Known, d.Known)
	fill(&p.Root, d.Root)
	fill(&p.Annotation, d.Annotation)
	fill(&p.Special, d.Special)
	fill(&p.Expr, d.Expr)
	fill(&p.Opcode, d.Opcode)
	fill(&p.Register, d.Register)
	fill(&p.Immediate, d.Immediate)
	fill(&p.Attribute, d.Attribute)
	fill(&p.Segment, d.Segment)
	fill(&p.String, d.String)
	fill(&p.Text, d.Text)
	return p
}

// Colors lists every role color in declaration order.
func (p Palette) Colors() []Color {
	return []Color{
		p.Keyword, p.Type, p.Field, p.Constant, p.Delimiter, p.Address, p.Error,
		p.Brackets, p.Comment, p.Item, p.Known, p.Root, p.Annotation, p.Special,
		p.Expr, p.Opcode, p.Register, p.Immediate, p.Attribute, p.Segment, p.String, p.Text,
	}
}
