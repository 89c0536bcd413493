package ast

// Command is a statement.
type Command interface {
	commandNode()
}

// Meta records the source position of the next command. It is emitted by
// the front end in debug builds and only affects error backtraces.
type Meta struct {
	Line uint16
	Col  uint16
	Code string
}

// MetaFile names the source file for subsequent Meta commands.
type MetaFile struct {
	File string
}

type DeclareVariable struct {
	Kind  VariableKind
	Name  string
	Value Expression
}

type AssignVariable struct {
	Name  string
	Value Expression
}

// Puts writes the display form of Value to standard output.
type Puts struct {
	Value Expression
}

// Push evaluates Value and pushes it onto the prev stack.
type Push struct {
	Value Expression
}

// Scope runs Body in a child context.
type Scope struct {
	Body []Command
}

type Loop struct {
	Body []Command
}

// Conditional runs Body when Condition is true, otherwise Otherwise.
// A nil Otherwise means there is no else branch.
type Conditional struct {
	Condition Expression
	Body      []Command
	Otherwise []Command
}

type Break struct{}

// Builtin calls a native operation by its dotted name, e.g. ".vm.create".
type Builtin struct {
	Name string
	Args []Expression
}

// Call invokes the function Callee evaluates to.
type Call struct {
	Callee Expression
	Args   []Expression
}

// For iterates the iterator object Iterator evaluates to.
type For struct {
	Var      string
	Iterator Expression
	Body     []Command
}

// DeclareFunction declares a const binding holding a function value.
type DeclareFunction struct {
	Name   string
	Params []Param
	Ret    Type
	Body   []Command
}

type Return struct {
	Value Expression
}

// Struct registers a struct type in the current context.
type Struct struct {
	Name   string
	Fields []FieldDef
}

func (Meta) commandNode()            {}
func (MetaFile) commandNode()        {}
func (DeclareVariable) commandNode() {}
func (AssignVariable) commandNode()  {}
func (Puts) commandNode()            {}
func (Push) commandNode()            {}
func (Scope) commandNode()           {}
func (Loop) commandNode()            {}
func (Conditional) commandNode()     {}
func (Break) commandNode()           {}
func (Builtin) commandNode()         {}
func (Call) commandNode()            {}
func (For) commandNode()             {}
func (DeclareFunction) commandNode() {}
func (Return) commandNode()          {}
func (Struct) commandNode()          {}
