package biz

// SeedWord is one entry of the built-in blocked word table.
type SeedWord struct {
	Word     string
	Category ViolationCategory
	Lang     string
}

// seedTable lists the default blocked words per category and language.
// Entries are at most three words, with unsegmented runs of at most eight
// characters, so the word tier can match them inside a prompt.
var seedTable = map[ViolationCategory]map[string][]string{
	CategoryAdult: {
		"en":      {"porn", "pornography", "nude", "nudity", "naked", "nsfw", "hentai", "xxx", "explicit sex", "sex video"},
		"zh-Hant": {"裸體", "色情", "成人影片", "情色", "裸照", "性愛"},
		"zh-Hans": {"裸体", "色情片", "成人视频", "裸照", "性爱"},
		"ja":      {"ヌード", "ポルノ", "エロ画像", "裸体", "アダルト動画"},
		"es":      {"desnudo", "desnuda", "pornografía", "porno", "sexo explícito"},
	},
	CategoryViolence: {
		"en":      {"kill", "murder", "massacre", "behead", "torture", "gore", "bloodbath"},
		"zh-Hant": {"殺人", "謀殺", "斬首", "酷刑", "屠殺"},
		"zh-Hans": {"杀人", "谋杀", "斩首", "屠杀"},
		"ja":      {"殺人", "殺す", "虐殺", "拷問", "斬首"},
		"es":      {"matar", "asesinar", "asesinato", "masacre", "tortura"},
	},
	CategoryHate: {
		"en":      {"white supremacy", "ethnic cleansing", "racial slur", "nazi propaganda"},
		"zh-Hant": {"種族歧視", "種族清洗"},
		"zh-Hans": {"种族歧视", "种族清洗"},
		"ja":      {"人種差別", "ヘイトスピーチ"},
		"es":      {"supremacía blanca", "limpieza étnica"},
	},
	CategoryIllegal: {
		"en":      {"cocaine", "heroin", "meth", "methamphetamine", "drug trafficking", "money laundering", "child abuse"},
		"zh-Hant": {"毒品", "海洛因", "冰毒", "販毒", "洗錢"},
		"zh-Hans": {"毒品", "海洛因", "贩毒", "洗钱"},
		"ja":      {"麻薬", "覚醒剤", "ヘロイン", "コカイン"},
		"es":      {"cocaína", "heroína", "narcotráfico", "lavado de dinero"},
	},
	CategorySelfHarm: {
		"en":      {"suicide", "self harm", "kill myself", "cut myself"},
		"zh-Hant": {"自殺", "自殘", "割腕"},
		"zh-Hans": {"自杀", "自残"},
		"ja":      {"自殺", "自傷", "リストカット"},
		"es":      {"suicidio", "autolesión", "suicidarme"},
	},
	CategoryDangerous: {
		"en":      {"bomb", "make bomb", "bomb making", "build a bomb", "explosives", "pipe bomb", "nerve gas", "bioweapon"},
		"zh-Hant": {"炸彈", "爆炸物", "製造炸彈", "恐怖攻擊"},
		"zh-Hans": {"炸弹", "爆炸物", "制造炸弹", "恐怖袭击"},
		"ja":      {"爆弾", "爆発物", "テロ攻撃"},
		"es":      {"bomba", "explosivos", "fabricar bomba"},
	},
}

// Iteration order for SeedWords.
var (
	seedCategories = []ViolationCategory{
		CategoryAdult, CategoryViolence, CategoryHate,
		CategoryIllegal, CategorySelfHarm, CategoryDangerous,
	}
	seedLanguages = []string{"en", "zh-Hant", "zh-Hans", "ja", "es"}
)

// SeedWords returns the built-in word table flattened in a stable order.
// A word listed under several languages appears once per language.
func SeedWords() []SeedWord {
	var out []SeedWord
	for _, category := range seedCategories {
		byLang := seedTable[category]
		for _, lang := range seedLanguages {
			for _, w := range byLang[lang] {
				out = append(out, SeedWord{Word: w, Category: category, Lang: lang})
			}
		}
	}
	return out
}
