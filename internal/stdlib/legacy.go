// internal/stdlib/legacy.go
package stdlib

// Classic binary-format function ids. Importers hand these over when a
// file stores calls by id instead of by name.
var legacyIDs = map[uint16]string{
	0:   "COUNT",
	1:   "IF",
	2:   "ISNA",
	3:   "ISERROR",
	4:   "SUM",
	5:   "AVERAGE",
	6:   "MIN",
	7:   "MAX",
	8:   "ROW",
	9:   "COLUMN",
	10:  "NA",
	11:  "NPV",
	12:  "STDEV",
	13:  "DOLLAR",
	14:  "FIXED",
	15:  "SIN",
	16:  "COS",
	17:  "TAN",
	18:  "ATAN",
	19:  "PI",
	20:  "SQRT",
	21:  "EXP",
	22:  "LN",
	23:  "LOG10",
	24:  "ABS",
	25:  "INT",
	26:  "SIGN",
	27:  "ROUND",
	28:  "LOOKUP",
	29:  "INDEX",
	30:  "REPT",
	31:  "MID",
	32:  "LEN",
	33:  "VALUE",
	34:  "TRUE",
	35:  "FALSE",
	36:  "AND",
	37:  "OR",
	38:  "NOT",
	39:  "MOD",
	46:  "VAR",
	48:  "TEXT",
	56:  "PV",
	57:  "FV",
	58:  "NPER",
	59:  "PMT",
	60:  "RATE",
	61:  "MIRR",
	62:  "IRR",
	63:  "RAND",
	64:  "MATCH",
	65:  "DATE",
	66:  "TIME",
	67:  "DAY",
	68:  "MONTH",
	69:  "YEAR",
	70:  "WEEKDAY",
	71:  "HOUR",
	72:  "MINUTE",
	73:  "SECOND",
	74:  "NOW",
	75:  "AREAS",
	76:  "ROWS",
	77:  "COLUMNS",
	78:  "OFFSET",
	82:  "SEARCH",
	83:  "TRANSPOSE",
	86:  "TYPE",
	97:  "ATAN2",
	98:  "ASIN",
	99:  "ACOS",
	100: "CHOOSE",
	101: "HLOOKUP",
	102: "VLOOKUP",
	105: "ISREF",
	109: "LOG",
	111: "CHAR",
	112: "LOWER",
	113: "UPPER",
	114: "PROPER",
	115: "LEFT",
	116: "RIGHT",
	117: "EXACT",
	118: "TRIM",
	119: "REPLACE",
	120: "SUBSTITUTE",
	121: "CODE",
	124: "FIND",
	126: "ISERR",
	127: "ISTEXT",
	128: "ISNUMBER",
	129: "ISBLANK",
	130: "T",
	131: "N",
	140: "DATEVALUE",
	141: "TIMEVALUE",
	142: "SLN",
	143: "SYD",
	144: "DDB",
	148: "INDIRECT",
	162: "CLEAN",
	163: "MDETERM",
	167: "IPMT",
	168: "PPMT",
	169: "COUNTA",
	183: "PRODUCT",
	184: "FACT",
	190: "ISNONTEXT",
	193: "STDEVP",
	194: "VARP",
	197: "TRUNC",
	198: "ISLOGICAL",
	212: "ROUNDUP",
	213: "ROUNDDOWN",
	216: "RANK",
	219: "ADDRESS",
	220: "DAYS360",
	221: "TODAY",
	222: "VDB",
	227: "MEDIAN",
	228: "SUMPRODUCT",
	229: "SINH",
	230: "COSH",
	231: "TANH",
	247: "DB",
	261: "ERROR.TYPE",
	269: "AVEDEV",
	276: "COMBIN",
	279: "EVEN",
	285: "FLOOR",
	288: "CEILING",
	298: "ISODD",
	299: "ISEVEN",
	300: "ISERROR",
	303: "LARGE",
	304: "SMALL",
	311: "ODD",
	312: "PERMUT",
	318: "DEVSQ",
	321: "SUMSQ",
	322: "KURT",
	323: "SKEW",
	325: "QUARTILE",
	326: "PERCENTILE",
	329: "MODE",
	336: "CONCATENATE",
	337: "POWER",
	342: "RADIANS",
	343: "DEGREES",
	344: "SUBTOTAL",
	345: "SUMIF",
	346: "COUNTIF",
	347: "COUNTBLANK",
	350: "ISPMT",
	354: "ROMAN",
	358: "GETPIVOTDATA",
	359: "HYPERLINK",
	362: "AVERAGEA",
	363: "MAXA",
	364: "MINA",
	365: "STDEVPA",
	366: "VARPA",
	367: "STDEVA",
	368: "VARA",
}

func registerLegacyIDs(r *Registry) {
	for id, name := range legacyIDs {
		// only expose ids whose function is actually installed
		if _, ok := r.funcs[name]; ok {
			r.legacy[id] = name
		}
	}
}
