package bytecode

import "fmt"

// Tag is a node tag byte. Tags are organized into ranges by category;
// types, binary operators, variable kinds and object/function sub-kinds
// are separate namespaces that only appear after their parent tag.
type Tag byte

const (
	// ========================================================================
	// Types (0x00-0x0F)
	// ========================================================================

	TypeAnonymous Tag = 0x00
	TypeNamed     Tag = 0x01 // <name>
	TypeTuple     Tag = 0x02 // <count> <type>*
	TypeUnion     Tag = 0x03 // <type> <type>
	TypeBool      Tag = 0x04
	TypeFun       Tag = 0x05 // <count> <type>* <ret:type>
	TypeString    Tag = 0x06
	TypeU8        Tag = 0x07

	// ========================================================================
	// Binary operator sub-kinds (0x00-0x0F), following ExprBinary
	// ========================================================================

	BinAdd              Tag = 0x00
	BinSub              Tag = 0x01
	BinMult             Tag = 0x02
	BinEqual            Tag = 0x03
	BinNotEqual         Tag = 0x04
	BinGreaterThan      Tag = 0x05
	BinGreaterThanEqual Tag = 0x06
	BinLessThan         Tag = 0x07
	BinLessThanEqual    Tag = 0x08

	// ========================================================================
	// Expressions (0x10-0x2F)
	// ========================================================================

	ExprValue    Tag = 0x11 // <value>
	ExprVar      Tag = 0x12 // <name>
	ExprProperty Tag = 0x13 // <expr> <expr>
	ExprBinary   Tag = 0x14 // <op> <expr> <expr>
	ExprPrev     Tag = 0x15
	ExprRange    Tag = 0x16 // <expr> <expr>
	ExprRef      Tag = 0x17 // <kind> <expr>
	ExprStruct   Tag = 0x18 // <type> <count> (<name> <expr>)*

	// ========================================================================
	// Values (0x30-0x4F)
	// ========================================================================

	ValNull   Tag = 0x31
	ValBool   Tag = 0x32 // <0|1>
	ValString Tag = 0x33 // <escaped bytes> 0x00
	ValU8     Tag = 0x34 // <u8>
	ValI16    Tag = 0x35 // <sign> <magnitude:u16>
	ValF32    Tag = 0x36 // <bits:u32>
	ValChar   Tag = 0x37 // <rune:u32>
	ValObject Tag = 0x38 // <object sub-kind> ...
	ValFun    Tag = 0x39 // <fun sub-kind> <count> <param>* <ret:type> <body>

	// Object sub-kinds
	ObjInstance    Tag = 0x01 // <type> <count> (<name> <value>)*
	ObjPropertyMap Tag = 0x02 // <count> (<name> <value>)*

	// Function sub-kinds
	FunConst   Tag = 0x01
	FunMutable Tag = 0x02

	// ========================================================================
	// Commands (0x50-0x6F)
	// ========================================================================

	CmdMeta        Tag = 0x50 // <line:u16> <col:u16> <code:string>
	CmdDeclare     Tag = 0x51 // <kind> <name> <expr>
	CmdAssign      Tag = 0x52 // <name> <expr>
	CmdPuts        Tag = 0x53 // <expr>
	CmdPush        Tag = 0x54 // <expr>
	CmdScope       Tag = 0x55 // <body>
	CmdLoop        Tag = 0x56 // <body>
	CmdConditional Tag = 0x57 // <expr> <body> (0x00 | 0x01 <body>)
	CmdBreak       Tag = 0x58
	CmdBuiltin     Tag = 0x59 // <name> <count> <expr>*
	CmdCall        Tag = 0x5A // <expr> <count> <expr>*
	CmdFor         Tag = 0x5B // <name> <expr> <body>
	CmdFunction    Tag = 0x5C // <name> <count> <param>* <ret:type> <body>
	CmdReturn      Tag = 0x5D // <expr>
	CmdStruct      Tag = 0x5E // <name> <count> (<name> <type>)*
	CmdMetaFile    Tag = 0x5F // <file:string>

	// EndOfBody terminates a command body.
	EndOfBody Tag = 0x00
)

// Category names a tag namespace.
type Category byte

const (
	CatType Category = iota
	CatBinary
	CatExpr
	CatValue
	CatObject
	CatFun
	CatCommand
)

var categoryNames = [...]string{
	CatType:    "type",
	CatBinary:  "binary operator",
	CatExpr:    "expression",
	CatValue:   "value",
	CatObject:  "object kind",
	CatFun:     "function kind",
	CatCommand: "command",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", byte(c))
}

// TagInfo provides metadata about a tag for inspection and validation.
type TagInfo struct {
	Name     string // Human-readable name
	Operands string // Operand layout following the tag
}

// tagInfoTable maps each category's tags to their metadata.
var tagInfoTable = map[Category]map[Tag]TagInfo{
	CatType: {
		TypeAnonymous: {"ANONYMOUS", ""},
		TypeNamed:     {"NAMED", "name"},
		TypeTuple:     {"TUPLE", "count type*"},
		TypeUnion:     {"UNION", "type type"},
		TypeBool:      {"BOOL", ""},
		TypeFun:       {"FUN", "count type* type"},
		TypeString:    {"STRING", ""},
		TypeU8:        {"U8", ""},
	},
	CatBinary: {
		BinAdd:              {"ADD", ""},
		BinSub:              {"SUB", ""},
		BinMult:             {"MULT", ""},
		BinEqual:            {"EQUAL", ""},
		BinNotEqual:         {"NOT_EQUAL", ""},
		BinGreaterThan:      {"GREATER_THAN", ""},
		BinGreaterThanEqual: {"GREATER_THAN_EQUAL", ""},
		BinLessThan:         {"LESS_THAN", ""},
		BinLessThanEqual:    {"LESS_THAN_EQUAL", ""},
	},
	CatExpr: {
		ExprValue:    {"VALUE", "value"},
		ExprVar:      {"VAR", "name"},
		ExprProperty: {"PROPERTY", "expr expr"},
		ExprBinary:   {"BINARY", "op expr expr"},
		ExprPrev:     {"PREV", ""},
		ExprRange:    {"RANGE", "expr expr"},
		ExprRef:      {"REF", "kind expr"},
		ExprStruct:   {"STRUCT", "type count (name expr)*"},
	},
	CatValue: {
		ValNull:   {"NULL", ""},
		ValBool:   {"BOOL", "u8"},
		ValString: {"STRING", "string"},
		ValU8:     {"U8", "u8"},
		ValI16:    {"I16", "sign u16"},
		ValF32:    {"F32", "u32"},
		ValChar:   {"CHAR", "u32"},
		ValObject: {"OBJECT", "kind ..."},
		ValFun:    {"FUN", "kind count param* type body"},
	},
	CatObject: {
		ObjInstance:    {"INSTANCE", "type count (name value)*"},
		ObjPropertyMap: {"PROPERTY_MAP", "count (name value)*"},
	},
	CatFun: {
		FunConst:   {"CONST", ""},
		FunMutable: {"MUTABLE", ""},
	},
	CatCommand: {
		CmdMeta:        {"META", "u16 u16 string"},
		CmdDeclare:     {"DECLARE", "kind name expr"},
		CmdAssign:      {"ASSIGN", "name expr"},
		CmdPuts:        {"PUTS", "expr"},
		CmdPush:        {"PUSH", "expr"},
		CmdScope:       {"SCOPE", "body"},
		CmdLoop:        {"LOOP", "body"},
		CmdConditional: {"CONDITIONAL", "expr body (0|1 body)"},
		CmdBreak:       {"BREAK", ""},
		CmdBuiltin:     {"BUILTIN", "name count expr*"},
		CmdCall:        {"CALL", "expr count expr*"},
		CmdFor:         {"FOR", "name expr body"},
		CmdFunction:    {"FUNCTION", "name count param* type body"},
		CmdReturn:      {"RETURN", "expr"},
		CmdStruct:      {"STRUCT", "name count (name type)*"},
		CmdMetaFile:    {"META_FILE", "string"},
	},
}

// GetTagInfo returns metadata for a tag within a category.
func GetTagInfo(cat Category, t Tag) (TagInfo, bool) {
	info, ok := tagInfoTable[cat][t]
	return info, ok
}

// TagName returns the human-readable name of a tag within a category.
func TagName(cat Category, t Tag) string {
	if info, ok := GetTagInfo(cat, t); ok {
		return info.Name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(t))
}
